package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/nightgrid/event-pipeline/internal/client"
	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/detector"
	"github.com/nightgrid/event-pipeline/internal/genres"
	"github.com/nightgrid/event-pipeline/internal/resolver"
	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

const insertTaggedArtistStm = "INSERT INTO artists (id, name, normalized_name, external_id) VALUES ('%s', '%s', '%s', '%s');"

type stubScraper struct {
	event *client.ScrapedEvent
	err   error
	block bool
	calls int
}

func (s *stubScraper) Scrape(ctx context.Context, sourceURL string) (*client.ScrapedEvent, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.event, nil
}

type stubTags struct {
	tags map[string][]string
}

func (s *stubTags) GetTags(ctx context.Context, externalID string) ([]string, error) {
	return s.tags[externalID], nil
}

type stubDirectory struct {
	entries []client.DirectoryEntry
	csv     []byte
	fetched string
}

func (s *stubDirectory) ListAll(ctx context.Context) ([]client.DirectoryEntry, error) {
	return s.entries, nil
}

func (s *stubDirectory) FetchTimetable(ctx context.Context, id string) ([]byte, error) {
	s.fetched = id
	return s.csv, nil
}

type stubExtractor struct {
	performances []client.ExtractedPerformance
	err          error
}

func (s *stubExtractor) Extract(ctx context.Context, description string) ([]client.ExtractedPerformance, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.performances, nil
}

// newPipelineConfig tightens the retry and pacing knobs so specs settle fast.
func newPipelineConfig() *config.Config {
	cfg := config.NewDefault()
	cfg.Pipeline.RetryAttempts = 1
	cfg.Pipeline.RetryBaseDelay = time.Millisecond
	cfg.Pipeline.RetryMaxDelay = 5 * time.Millisecond
	cfg.Pipeline.EnrichmentDelay = 0
	return cfg
}

func newTestPipeline(s store.Store, collab service.Collaborators, cfg *config.Config) *service.Pipeline {
	res := resolver.New(s, nil, nil, cfg)
	det := detector.New(cfg.Pipeline.FestivalConfidenceThreshold)
	agg := genres.New(s, cfg)
	return service.NewPipeline(s, res, det, agg, collab, cfg)
}

func clubListing() *client.ScrapedEvent {
	lat := 52.3702
	lng := 4.8952
	return &client.ScrapedEvent{
		Name:           "Amelie Lens at De School",
		Description:    "All night long.",
		StartTimestamp: time.Date(2026, 6, 12, 22, 0, 0, 0, time.UTC).Unix(),
		EndTimestamp:   time.Date(2026, 6, 13, 4, 0, 0, 0, time.UTC).Unix(),
		Location: &client.ScrapedLocation{
			Name:      "De School",
			Address:   "Doctor Jan van Breemenstraat 1",
			City:      "Amsterdam",
			Country:   "Netherlands",
			Latitude:  &lat,
			Longitude: &lng,
		},
		Hosts:     []client.ScrapedHost{{Name: "Audio Obscura", ID: "host-1", URL: "https://ra.co/promoters/1"}},
		Photo:     &client.ScrapedPhoto{URL: "https://img.example/flyer.jpg"},
		TicketURL: "https://shop.example/tickets/1",
	}
}

const awakeningsCSV = `Start,End,Name,Location
2026/06/12 22:00,2026/06/12 23:30,Amelie Lens,Main
2026/06/12 23:30,2026/06/13 01:00,Ben Klock,Main
`

var _ = Describe("pipeline", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		_ = s.InitialMigration(context.TODO())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from event_artists;")
		gormdb.Exec("DELETE from event_genres;")
		gormdb.Exec("DELETE from event_promoters;")
		gormdb.Exec("DELETE from events;")
		gormdb.Exec("DELETE from promoters;")
		gormdb.Exec("DELETE from artists;")
		gormdb.Exec("DELETE from venues;")
		gormdb.Exec("DELETE from genres;")
		gormdb.Exec("DELETE from import_jobs;")
	})

	Context("successful runs", func() {
		It("completes a club night end to end", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertTaggedArtistStm, uuid.NewString(), "Amelie Lens", "amelie lens", "sc-1"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertTaggedArtistStm, uuid.NewString(), "Ben Klock", "ben klock", "sc-2"))
			Expect(tx.Error).To(BeNil())

			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/1", 0))
			Expect(err).To(BeNil())

			p := newTestPipeline(s, service.Collaborators{
				Scraper: &stubScraper{event: clubListing()},
				Tags:    &stubTags{tags: map[string][]string{"sc-1": {"acid", "industrial"}, "sc-2": {"acid"}}},
				Extractor: &stubExtractor{performances: []client.ExtractedPerformance{
					{Name: "Amelie Lens", Time: "2026-06-12T23:00", Stage: "Main"},
					{Name: "Ben Klock", Time: "2026-06-13T02:00", Stage: "Main"},
				}},
			}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled).ToNot(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusCompleted))
			Expect(settled.ArtistCount).To(Equal(2))
			Expect(settled.EventID).ToNot(BeNil())
			Expect(settled.SourcePayload).ToNot(BeEmpty())

			event, err := s.Event().Get(context.TODO(), *settled.EventID)
			Expect(err).To(BeNil())
			Expect(event.Title).To(Equal("Amelie Lens at De School"))
			Expect(event.EventType).To(Equal("event"))
			Expect(event.ImageURL).To(Equal("https://img.example/flyer.jpg"))
			Expect(event.TicketURL).To(Equal("https://shop.example/tickets/1"))
			Expect(event.VenueID).ToNot(BeNil())
			Expect(event.Slots).To(HaveLen(2))
			Expect(event.Promoters).To(HaveLen(1))
			Expect(event.Promoters[0].Name).To(Equal("Audio Obscura"))
			Expect(event.Genres).To(HaveLen(1))
			Expect(event.Genres[0].Name).To(Equal("acid"))

			venue, err := s.Venue().Get(context.TODO(), *event.VenueID)
			Expect(err).To(BeNil())
			Expect(venue.Name).To(Equal("De School"))
			Expect(venue.City).To(Equal("Amsterdam"))

			promoter, err := s.Promoter().Get(context.TODO(), event.Promoters[0].ID)
			Expect(err).To(BeNil())
			Expect(promoter.Genres).To(HaveLen(1))

			Expect(settled.Logs).ToNot(BeNil())
			var messages []string
			for _, entry := range settled.Logs.Data {
				messages = append(messages, entry.Message)
			}
			Expect(messages).To(ContainElement(ContainSubstring("scraped listing")))
			Expect(messages).To(ContainElement(ContainSubstring("upserted event")))
		})

		It("assembles a forced festival from the timetable directory", func() {
			listing := clubListing()
			listing.Name = "Awakenings Festival 2026"
			listing.Description = ""
			listing.Hosts = nil
			listing.EndTimestamp = time.Date(2026, 6, 14, 23, 0, 0, 0, time.UTC).Unix()

			job := model.NewImportJob("https://ra.co/events/2", 0)
			job.ForceFestival = true
			_, err := s.Job().Create(context.TODO(), *job)
			Expect(err).To(BeNil())

			directory := &stubDirectory{
				entries: []client.DirectoryEntry{
					{ID: "dgtl-2026", Name: "DGTL 2026"},
					{ID: "awk-2026", Name: "Awakenings Festival 2026"},
				},
				csv: []byte(awakeningsCSV),
			}
			p := newTestPipeline(s, service.Collaborators{
				Scraper:   &stubScraper{event: listing},
				Directory: directory,
			}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusCompleted))
			Expect(settled.ArtistCount).To(Equal(2))
			Expect(directory.fetched).To(Equal("awk-2026"))

			event, err := s.Event().Get(context.TODO(), *settled.EventID)
			Expect(err).To(BeNil())
			Expect(event.EventType).To(Equal("festival"))
			Expect(event.Slots).To(HaveLen(2))
			Expect(event.Lineup).ToNot(BeNil())
			Expect(event.Lineup.Data.Stages).To(Equal([]string{"Main"}))
			Expect(event.Lineup.Data.FestivalDays).To(HaveLen(1))
			Expect(event.Lineup.Data.FestivalDays[0].Index).To(Equal(1))

			names, err := s.Artist().Names(context.TODO())
			Expect(err).To(BeNil())
			Expect(names).To(HaveLen(2))
		})

		It("marks shared timetable slots as a joint performance and stamps festival days", func() {
			listing := clubListing()
			listing.Name = "Awakenings Festival 2026"
			listing.Description = ""
			listing.Hosts = nil
			listing.EndTimestamp = time.Date(2026, 6, 14, 23, 0, 0, 0, time.UTC).Unix()

			job := model.NewImportJob("https://ra.co/events/10", 0)
			job.ForceFestival = true
			_, err := s.Job().Create(context.TODO(), *job)
			Expect(err).To(BeNil())

			sharedSlotCSV := strings.Join([]string{
				"Start,End,Name,Location",
				"2026/06/12 22:00,2026/06/13 00:00,Amelie Lens,Main",
				"2026/06/12 22:00,2026/06/13 00:00,Ben Klock,Main",
				"2026/06/13 23:00,2026/06/14 01:00,Speedy J,Main",
			}, "\n")
			directory := &stubDirectory{
				entries: []client.DirectoryEntry{{ID: "awk-2026", Name: "Awakenings Festival 2026"}},
				csv:     []byte(sharedSlotCSV),
			}
			p := newTestPipeline(s, service.Collaborators{
				Scraper:   &stubScraper{event: listing},
				Directory: directory,
			}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusCompleted))
			Expect(settled.ArtistCount).To(Equal(3))

			event, err := s.Event().Get(context.TODO(), *settled.EventID)
			Expect(err).To(BeNil())
			Expect(event.Slots).To(HaveLen(3))
			Expect(event.Lineup.Data.FestivalDays).To(HaveLen(2))

			byArtist := map[string]model.EventArtist{}
			for _, slot := range event.Slots {
				byArtist[slot.Artist.Name] = slot
			}
			Expect(byArtist["Amelie Lens"].Mode).To(Equal("B2B"))
			Expect(byArtist["Amelie Lens"].CustomName).To(Equal("Amelie Lens b2b Ben Klock"))
			Expect(byArtist["Ben Klock"].CustomName).To(Equal("Amelie Lens b2b Ben Klock"))
			Expect(byArtist["Amelie Lens"].Day).To(Equal(1))
			Expect(byArtist["Ben Klock"].Day).To(Equal(1))
			Expect(byArtist["Speedy J"].Day).To(Equal(2))
			Expect(byArtist["Speedy J"].Mode).To(BeEmpty())
			Expect(byArtist["Speedy J"].CustomName).To(BeEmpty())
		})

		It("reuses the cached payload instead of re-scraping", func() {
			created, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/3", 0))
			Expect(err).To(BeNil())
			err = s.Job().SetSourcePayload(context.TODO(), created.ID, []byte(`{"name":"Cached Night","startTimestamp":1781215200}`))
			Expect(err).To(BeNil())

			scraper := &stubScraper{err: retry.Transient(errors.New("scraper down"))}
			p := newTestPipeline(s, service.Collaborators{Scraper: scraper}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusCompleted))
			Expect(scraper.calls).To(Equal(0))

			event, err := s.Event().Get(context.TODO(), *settled.EventID)
			Expect(err).To(BeNil())
			Expect(event.Title).To(Equal("Cached Night"))
		})

		It("completes without optional collaborators", func() {
			listing := clubListing()
			listing.Description = ""
			listing.Location = nil
			listing.Hosts = nil

			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/4", 0))
			Expect(err).To(BeNil())

			p := newTestPipeline(s, service.Collaborators{Scraper: &stubScraper{event: listing}}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusCompleted))
			Expect(settled.ArtistCount).To(Equal(0))

			event, err := s.Event().Get(context.TODO(), *settled.EventID)
			Expect(err).To(BeNil())
			Expect(event.VenueID).To(BeNil())
			Expect(event.Slots).To(HaveLen(0))
			Expect(event.Genres).To(HaveLen(0))
		})

		It("returns nothing when the queue is empty", func() {
			p := newTestPipeline(s, service.Collaborators{Scraper: &stubScraper{}}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled).To(BeNil())
		})
	})

	Context("failed runs", func() {
		It("burns one retry on a transient scrape failure", func() {
			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/5", 0))
			Expect(err).To(BeNil())

			p := newTestPipeline(s, service.Collaborators{
				Scraper: &stubScraper{err: retry.Transient(errors.New("connection reset"))},
			}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusFailed))
			Expect(settled.RetryCount).To(Equal(1))
			Expect(settled.ErrorDetail).ToNot(BeNil())
			Expect(settled.ErrorDetail.Data.Kind).To(Equal(model.ErrorKindTransient))
			Expect(settled.ErrorDetail.Data.Stage).To(Equal("scrape"))
		})

		It("records a permanent scrape failure", func() {
			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/6", 0))
			Expect(err).To(BeNil())

			p := newTestPipeline(s, service.Collaborators{
				Scraper: &stubScraper{err: retry.Permanent(errors.New("listing gone"))},
			}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusFailed))
			Expect(settled.RetryCount).To(Equal(1))
			Expect(settled.ErrorDetail.Data.Kind).To(Equal(model.ErrorKindPermanent))
		})

		It("fails a titleless listing terminally", func() {
			listing := clubListing()
			listing.Name = "   "

			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/7", 0))
			Expect(err).To(BeNil())

			p := newTestPipeline(s, service.Collaborators{Scraper: &stubScraper{event: listing}}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusFailed))
			Expect(settled.RetryExhausted()).To(BeTrue())
			Expect(settled.ErrorDetail.Data.Kind).To(Equal(model.ErrorKindValidation))
			Expect(settled.ErrorDetail.Data.Stage).To(Equal("validate"))
			Expect(settled.ErrorMessage).To(ContainSubstring("title"))
		})

		It("fails a listing without a start time terminally", func() {
			listing := clubListing()
			listing.StartTimestamp = 0

			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/8", 0))
			Expect(err).To(BeNil())

			p := newTestPipeline(s, service.Collaborators{Scraper: &stubScraper{event: listing}}, newPipelineConfig())

			settled, err := p.ProcessNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(settled.Status).To(Equal(model.JobStatusFailed))
			Expect(settled.RetryExhausted()).To(BeTrue())
			Expect(settled.ErrorMessage).To(ContainSubstring("start time"))
		})

		It("releases the claim when the job budget fires", func() {
			_, err := s.Job().Create(context.TODO(), *model.NewImportJob("https://ra.co/events/9", 0))
			Expect(err).To(BeNil())

			cfg := newPipelineConfig()
			cfg.Pipeline.JobTimeout = 50 * time.Millisecond
			p := newTestPipeline(s, service.Collaborators{Scraper: &stubScraper{block: true}}, cfg)

			claimed, err := s.Job().ClaimNext(context.TODO())
			Expect(err).To(BeNil())
			Expect(claimed).ToNot(BeNil())

			err = p.Run(context.TODO(), claimed)
			Expect(err).ToNot(BeNil())

			job, err := s.Job().Get(context.TODO(), claimed.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.ProcessingStartedAt).To(BeNil())
			Expect(job.RetryCount).To(Equal(0))

			Expect(job.Logs).ToNot(BeNil())
			var messages []string
			for _, entry := range job.Logs.Data {
				messages = append(messages, entry.Message)
			}
			Expect(messages).To(ContainElement(ContainSubstring("run interrupted during scrape")))
		})
	})
})
