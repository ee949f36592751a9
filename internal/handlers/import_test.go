package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/nightgrid/event-pipeline/internal/client"
	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/detector"
	"github.com/nightgrid/event-pipeline/internal/genres"
	"github.com/nightgrid/event-pipeline/internal/handlers"
	"github.com/nightgrid/event-pipeline/internal/resolver"
	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store"
)

const insertJobStm = "INSERT INTO import_jobs (id, source_url, status, priority, retry_count, max_retries, created_at, updated_at) VALUES ('%s', '%s', '%s', %d, %d, %d, %s, now());"

type scraperStub struct {
	event *client.ScrapedEvent
}

func (s *scraperStub) Scrape(ctx context.Context, sourceURL string) (*client.ScrapedEvent, error) {
	return s.event, nil
}

type jobResponse struct {
	ID           string `json:"id"`
	SourceURL    string `json:"sourceUrl"`
	Status       string `json:"status"`
	Priority     int    `json:"priority"`
	RetryCount   int    `json:"retryCount"`
	MaxRetries   int    `json:"maxRetries"`
	ErrorMessage string `json:"errorMessage"`
	EventID      string `json:"eventId"`
	ArtistCount  int    `json:"artistCount"`
}

type jobListResponse struct {
	Jobs []jobResponse `json:"jobs"`
}

var _ = Describe("import handlers", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		router *chi.Mux
	)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, target, nil)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		_ = s.InitialMigration(context.TODO())

		cfg := config.NewDefault()
		cfg.Pipeline.RetryAttempts = 1
		cfg.Pipeline.RetryBaseDelay = time.Millisecond
		cfg.Pipeline.RetryMaxDelay = 5 * time.Millisecond
		cfg.Pipeline.EnrichmentDelay = 0

		listing := &client.ScrapedEvent{
			Name:           "Warehouse Night",
			StartTimestamp: time.Date(2026, 6, 12, 22, 0, 0, 0, time.UTC).Unix(),
		}
		pipeline := service.NewPipeline(
			s,
			resolver.New(s, nil, nil, cfg),
			detector.New(cfg.Pipeline.FestivalConfidenceThreshold),
			genres.New(s, cfg),
			service.Collaborators{Scraper: &scraperStub{event: listing}},
			cfg,
		)

		router = chi.NewRouter()
		handlers.New(service.NewImportService(s, cfg), pipeline).Register(router)
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from event_artists;")
		gormdb.Exec("DELETE from events;")
		gormdb.Exec("DELETE from import_jobs;")
	})

	Context("create import", func() {
		It("returns 201 with the new job", func() {
			rec := do(http.MethodPost, "/api/v1/imports", `{"url":"https://ra.co/events/2113030"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var job jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(BeNil())
			Expect(job.Status).To(Equal("pending"))
			Expect(job.SourceURL).To(Equal("https://ra.co/events/2113030"))
			Expect(job.MaxRetries).To(Equal(5))
		})

		It("returns 200 for a url with a live job", func() {
			rec := do(http.MethodPost, "/api/v1/imports", `{"url":"https://ra.co/events/2113030"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var first jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &first)).To(BeNil())

			rec = do(http.MethodPost, "/api/v1/imports", `{"url":"https://ra.co/events/2113030"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var second jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &second)).To(BeNil())
			Expect(second.ID).To(Equal(first.ID))
		})

		It("rejects an invalid source url with 400", func() {
			rec := do(http.MethodPost, "/api/v1/imports", `{"url":"not a url"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("invalid source url"))
		})

		It("rejects an unreadable body with 400", func() {
			rec := do(http.MethodPost, "/api/v1/imports", `{`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("get import", func() {
		It("returns the job", func() {
			rec := do(http.MethodPost, "/api/v1/imports", `{"url":"https://ra.co/events/2113030","priority":3}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var created jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(BeNil())

			rec = do(http.MethodGet, "/api/v1/imports/"+created.ID, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var job jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(BeNil())
			Expect(job.ID).To(Equal(created.ID))
			Expect(job.Priority).To(Equal(3))
		})

		It("returns 404 for an unknown job", func() {
			rec := do(http.MethodGet, "/api/v1/imports/"+uuid.NewString(), "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a malformed id", func() {
			rec := do(http.MethodGet, "/api/v1/imports/not-a-uuid", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("list and stats", func() {
		It("lists jobs filtered by status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "https://ra.co/events/1", "pending", 0, 0, 5, "now() - interval '2 hours'"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "https://ra.co/events/2", "pending", 0, 0, 5, "now() - interval '1 hour'"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "https://ra.co/events/3", "completed", 0, 0, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			rec := do(http.MethodGet, "/api/v1/imports?status=pending", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var list jobListResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(BeNil())
			Expect(list.Jobs).To(HaveLen(2))
		})

		It("rejects an unknown status filter", func() {
			rec := do(http.MethodGet, "/api/v1/imports?status=sleeping", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("unknown status filter"))
		})

		It("lists only exhausted jobs as failures", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "https://ra.co/events/1", "failed", 0, 1, 5, "now()"))
			Expect(tx.Error).To(BeNil())
			exhaustedID := uuid.NewString()
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, exhaustedID, "https://ra.co/events/2", "failed", 0, 5, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			rec := do(http.MethodGet, "/api/v1/imports/failures", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var list jobListResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(BeNil())
			Expect(list.Jobs).To(HaveLen(1))
			Expect(list.Jobs[0].ID).To(Equal(exhaustedID))
		})

		It("reports queue stats", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "https://ra.co/events/1", "pending", 0, 0, 5, "now()"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "https://ra.co/events/2", "failed", 0, 5, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			rec := do(http.MethodGet, "/api/v1/queue/stats", "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var stats struct {
				Pending   int64 `json:"pending"`
				Failed    int64 `json:"failed"`
				Exhausted int64 `json:"exhausted"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(BeNil())
			Expect(stats.Pending).To(Equal(int64(1)))
			Expect(stats.Failed).To(Equal(int64(1)))
			Expect(stats.Exhausted).To(Equal(int64(1)))
		})
	})

	Context("retry", func() {
		It("resets a failed job", func() {
			jobID := uuid.NewString()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "https://ra.co/events/1", "failed", 0, 5, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			rec := do(http.MethodPost, "/api/v1/imports/"+jobID+"/retry", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var job jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(BeNil())
			Expect(job.Status).To(Equal("pending"))
			Expect(job.RetryCount).To(Equal(0))
		})

		It("returns 409 for a job that did not fail", func() {
			jobID := uuid.NewString()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "https://ra.co/events/1", "completed", 0, 0, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			rec := do(http.MethodPost, "/api/v1/imports/"+jobID+"/retry", "")
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("returns 404 for an unknown job", func() {
			rec := do(http.MethodPost, "/api/v1/imports/"+uuid.NewString()+"/retry", "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("process", func() {
		It("claims and runs the next job synchronously", func() {
			rec := do(http.MethodPost, "/api/v1/imports", `{"url":"https://ra.co/events/2113030"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = do(http.MethodPost, "/api/v1/imports/process", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var job jobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(BeNil())
			Expect(job.Status).To(Equal("completed"))
			Expect(job.EventID).ToNot(BeEmpty())
		})

		It("returns 204 when nothing is claimable", func() {
			rec := do(http.MethodPost, "/api/v1/imports/process", "")
			Expect(rec.Code).To(Equal(http.StatusNoContent))
		})
	})

	Context("health", func() {
		It("reports ok", func() {
			rec := do(http.MethodGet, "/health", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"ok"`))
		})
	})
})
