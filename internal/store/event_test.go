package store_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
)

var _ = Describe("event store", Ordered, func() {
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

	Context("upsert", func() {
		It("creates a new event", func() {
			starts := time.Date(2026, 6, 12, 22, 0, 0, 0, time.UTC)
			event, err := s.Event().Upsert(context.TODO(), model.Event{
				Title:     "DGTL Amsterdam 2026",
				EventType: "festival",
				SourceURL: "https://ra.co/events/1",
				StartsAt:  &starts,
			})
			Expect(err).To(BeNil())
			Expect(event.ID).ToNot(Equal(uuid.Nil))
			Expect(event.Title).To(Equal("DGTL Amsterdam 2026"))
			Expect(event.EventType).To(Equal("festival"))
		})

		It("updates in place when the source url is replayed", func() {
			first, err := s.Event().Upsert(context.TODO(), model.Event{
				Title:     "DGTL",
				EventType: "event",
				SourceURL: "https://ra.co/events/1",
			})
			Expect(err).To(BeNil())

			second, err := s.Event().Upsert(context.TODO(), model.Event{
				Title:     "DGTL Amsterdam 2026",
				EventType: "festival",
				SourceURL: "https://ra.co/events/1",
			})
			Expect(err).To(BeNil())
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Title).To(Equal("DGTL Amsterdam 2026"))
			Expect(second.EventType).To(Equal("festival"))

			events, err := s.Event().List(context.TODO(), store.NewEventQueryFilter())
			Expect(err).To(BeNil())
			Expect(events).To(HaveLen(1))
		})

		It("filters listings by event type", func() {
			_, err := s.Event().Upsert(context.TODO(), model.Event{Title: "Club Night", EventType: "event", SourceURL: "https://ra.co/events/1"})
			Expect(err).To(BeNil())
			_, err = s.Event().Upsert(context.TODO(), model.Event{Title: "DGTL", EventType: "festival", SourceURL: "https://ra.co/events/2"})
			Expect(err).To(BeNil())

			events, err := s.Event().List(context.TODO(), store.NewEventQueryFilter().ByEventType("festival"))
			Expect(err).To(BeNil())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Title).To(Equal("DGTL"))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from events;")
		})
	})

	Context("slots and lineup", func() {
		It("replaces performance slots wholesale", func() {
			event, err := s.Event().Upsert(context.TODO(), model.Event{Title: "DGTL", EventType: "festival", SourceURL: "https://ra.co/events/1"})
			Expect(err).To(BeNil())

			amelie, err := s.Artist().Create(context.TODO(), model.Artist{Name: "Amelie Lens", NormalizedName: "amelie lens"})
			Expect(err).To(BeNil())
			kiki, err := s.Artist().Create(context.TODO(), model.Artist{Name: "KI/KI", NormalizedName: "ki/ki"})
			Expect(err).To(BeNil())

			slotStart := time.Date(2026, 6, 12, 23, 0, 0, 0, time.UTC)
			slotEnd := slotStart.Add(90 * time.Minute)
			err = s.Event().ReplaceSlots(context.TODO(), event.ID, []model.EventArtist{
				{ArtistID: amelie.ID, Stage: "Main", StartsAt: &slotStart, EndsAt: &slotEnd},
				{ArtistID: kiki.ID, Stage: "Main", StartsAt: &slotStart, EndsAt: &slotEnd, Mode: "B2B", CustomName: "KI/KI b2b Amelie Lens"},
			})
			Expect(err).To(BeNil())

			stored, err := s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Slots).To(HaveLen(2))
			artistIDs := []uuid.UUID{stored.Slots[0].ArtistID, stored.Slots[1].ArtistID}
			Expect(artistIDs).To(ContainElements(amelie.ID, kiki.ID))

			err = s.Event().ReplaceSlots(context.TODO(), event.ID, []model.EventArtist{
				{ArtistID: amelie.ID, Stage: "Main"},
			})
			Expect(err).To(BeNil())

			stored, err = s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Slots).To(HaveLen(1))
			Expect(stored.Slots[0].Artist.Name).To(Equal("Amelie Lens"))
		})

		It("clears slots with an empty set", func() {
			event, err := s.Event().Upsert(context.TODO(), model.Event{Title: "DGTL", EventType: "festival", SourceURL: "https://ra.co/events/1"})
			Expect(err).To(BeNil())
			amelie, err := s.Artist().Create(context.TODO(), model.Artist{Name: "Amelie Lens", NormalizedName: "amelie lens"})
			Expect(err).To(BeNil())

			err = s.Event().ReplaceSlots(context.TODO(), event.ID, []model.EventArtist{{ArtistID: amelie.ID}})
			Expect(err).To(BeNil())
			err = s.Event().ReplaceSlots(context.TODO(), event.ID, nil)
			Expect(err).To(BeNil())

			stored, err := s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Slots).To(HaveLen(0))
		})

		It("stores the timetable summary on the event", func() {
			event, err := s.Event().Upsert(context.TODO(), model.Event{Title: "DGTL", EventType: "festival", SourceURL: "https://ra.co/events/1"})
			Expect(err).To(BeNil())

			dayStart := time.Date(2026, 6, 12, 14, 0, 0, 0, time.UTC)
			err = s.Event().SetLineup(context.TODO(), event.ID, model.Lineup{
				Stages: []string{"Main", "The Woods"},
				FestivalDays: []model.FestivalDay{
					{Index: 1, StartsAt: dayStart, EndsAt: dayStart.Add(9 * time.Hour)},
					{Index: 2, StartsAt: dayStart.Add(24 * time.Hour), EndsAt: dayStart.Add(33 * time.Hour)},
				},
			})
			Expect(err).To(BeNil())

			stored, err := s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Lineup).ToNot(BeNil())
			Expect(stored.Lineup.Data.Stages).To(Equal([]string{"Main", "The Woods"}))
			Expect(stored.Lineup.Data.FestivalDays).To(HaveLen(2))
			Expect(stored.Lineup.Data.FestivalDays[1].Index).To(Equal(2))
		})

		It("reports not found when storing a lineup on a missing event", func() {
			err := s.Event().SetLineup(context.TODO(), uuid.New(), model.Lineup{Stages: []string{"Main"}})
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from event_artists;")
			gormdb.Exec("DELETE from events;")
			gormdb.Exec("DELETE from artists;")
		})
	})

	Context("associations", func() {
		It("replaces genres wholesale", func() {
			event, err := s.Event().Upsert(context.TODO(), model.Event{Title: "DGTL", EventType: "festival", SourceURL: "https://ra.co/events/1"})
			Expect(err).To(BeNil())

			techno, err := s.Genre().GetOrCreate(context.TODO(), "techno")
			Expect(err).To(BeNil())
			house, err := s.Genre().GetOrCreate(context.TODO(), "house")
			Expect(err).To(BeNil())

			err = s.Event().ReplaceGenres(context.TODO(), event.ID, []model.Genre{*techno, *house})
			Expect(err).To(BeNil())

			stored, err := s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Genres).To(HaveLen(2))

			err = s.Event().ReplaceGenres(context.TODO(), event.ID, []model.Genre{*techno})
			Expect(err).To(BeNil())

			stored, err = s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Genres).To(HaveLen(1))
			Expect(stored.Genres[0].Name).To(Equal("techno"))
		})

		It("replaces promoters wholesale", func() {
			event, err := s.Event().Upsert(context.TODO(), model.Event{Title: "DGTL", EventType: "festival", SourceURL: "https://ra.co/events/1"})
			Expect(err).To(BeNil())

			promoter, err := s.Promoter().Create(context.TODO(), model.Promoter{Name: "Audio Obscura", NormalizedName: "audio obscura"})
			Expect(err).To(BeNil())

			err = s.Event().ReplacePromoters(context.TODO(), event.ID, []model.Promoter{*promoter})
			Expect(err).To(BeNil())

			stored, err := s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Promoters).To(HaveLen(1))
			Expect(stored.Promoters[0].Name).To(Equal("Audio Obscura"))

			err = s.Event().ReplacePromoters(context.TODO(), event.ID, []model.Promoter{})
			Expect(err).To(BeNil())

			stored, err = s.Event().Get(context.TODO(), event.ID)
			Expect(err).To(BeNil())
			Expect(stored.Promoters).To(HaveLen(0))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from event_genres;")
			gormdb.Exec("DELETE from event_promoters;")
			gormdb.Exec("DELETE from events;")
			gormdb.Exec("DELETE from genres;")
			gormdb.Exec("DELETE from promoters;")
		})
	})
})
