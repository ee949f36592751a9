package service_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
)

const insertImportJobStm = "INSERT INTO import_jobs (id, source_url, status, priority, retry_count, max_retries, created_at, updated_at) VALUES ('%s', '%s', '%s', %d, %d, %d, %s, now());"

var _ = Describe("import service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		svc    *service.ImportService
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		_ = s.InitialMigration(context.TODO())

		svc = service.NewImportService(s, cfg)
	})

	AfterAll(func() {
		s.Close()
	})

	Context("enqueue", func() {
		It("creates a pending job for a new source url", func() {
			job, created, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, false)
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.SourceURL).To(Equal("https://ra.co/events/2113030"))
			Expect(job.MaxRetries).To(Equal(model.DefaultMaxRetries))
			Expect(job.ForceFestival).To(BeFalse())
		})

		It("returns the live job instead of a duplicate", func() {
			first, created, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, false)
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())

			second, created, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 5, false)
			Expect(err).To(BeNil())
			Expect(created).To(BeFalse())
			Expect(second.ID).To(Equal(first.ID))

			jobs, err := s.Job().List(context.TODO(), nil, nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
		})

		It("resets an exhausted job instead of duplicating it", func() {
			job, _, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, false)
			Expect(err).To(BeNil())
			err = s.Job().FailTerminal(context.TODO(), job.ID, model.JobError{Kind: model.ErrorKindValidation, Stage: "validate", Message: "listing has no title"})
			Expect(err).To(BeNil())

			reset, created, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, false)
			Expect(err).To(BeNil())
			Expect(created).To(BeFalse())
			Expect(reset.ID).To(Equal(job.ID))
			Expect(reset.Status).To(Equal(model.JobStatusPending))
			Expect(reset.RetryCount).To(Equal(0))
			Expect(reset.ErrorMessage).To(BeEmpty())
		})

		It("records the festival override", func() {
			job, _, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, true)
			Expect(err).To(BeNil())
			Expect(job.ForceFestival).To(BeTrue())
		})

		It("applies the configured retry ceiling to new jobs", func() {
			raised := config.NewDefault()
			raised.Pipeline.MaxRetries = 8

			job, created, err := service.NewImportService(s, raised).Enqueue(context.TODO(), "https://ra.co/events/2113031", 0, false)
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())
			Expect(job.MaxRetries).To(Equal(8))
		})

		It("rejects a malformed source url", func() {
			_, _, err := svc.Enqueue(context.TODO(), "not a url", 0, false)
			Expect(err).ToNot(BeNil())
			var invalid *service.ErrInvalidSourceURL
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("rejects a non-http scheme", func() {
			_, _, err := svc.Enqueue(context.TODO(), "ftp://ra.co/events/1", 0, false)
			Expect(err).ToNot(BeNil())
			var invalid *service.ErrInvalidSourceURL
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("scheme"))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from import_jobs;")
		})
	})

	Context("inspection", func() {
		It("get reports an unknown job", func() {
			_, err := svc.Get(context.TODO(), uuid.New())
			Expect(err).ToNot(BeNil())
			var notFound *service.ErrJobNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("lists newest first with a status filter and limit", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertImportJobStm, uuid.NewString(), "https://ra.co/events/1", "completed", 0, 0, 5, "now() - interval '3 hours'"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertImportJobStm, uuid.NewString(), "https://ra.co/events/2", "pending", 0, 0, 5, "now() - interval '2 hours'"))
			Expect(tx.Error).To(BeNil())
			newestID := uuid.NewString()
			tx = gormdb.Exec(fmt.Sprintf(insertImportJobStm, newestID, "https://ra.co/events/3", "pending", 0, 0, 5, "now() - interval '1 hour'"))
			Expect(tx.Error).To(BeNil())

			jobs, err := svc.List(context.TODO(), model.JobStatusPending, 10)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID.String()).To(Equal(newestID))

			jobs, err = svc.List(context.TODO(), "", 2)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("failures lists only exhausted jobs", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertImportJobStm, uuid.NewString(), "https://ra.co/events/1", "failed", 0, 1, 5, "now()"))
			Expect(tx.Error).To(BeNil())
			exhaustedID := uuid.NewString()
			tx = gormdb.Exec(fmt.Sprintf(insertImportJobStm, exhaustedID, "https://ra.co/events/2", "failed", 0, 5, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			jobs, err := svc.Failures(context.TODO(), 10)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID.String()).To(Equal(exhaustedID))
		})

		It("stats mirrors the queue", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertImportJobStm, uuid.NewString(), "https://ra.co/events/1", "pending", 0, 0, 5, "now()"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertImportJobStm, uuid.NewString(), "https://ra.co/events/2", "failed", 0, 5, 5, "now()"))
			Expect(tx.Error).To(BeNil())

			stats, err := svc.Stats(context.TODO())
			Expect(err).To(BeNil())
			Expect(stats.Pending).To(Equal(int64(1)))
			Expect(stats.Failed).To(Equal(int64(1)))
			Expect(stats.Exhausted).To(Equal(int64(1)))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from import_jobs;")
		})
	})

	Context("manual retry", func() {
		It("resets a failed job", func() {
			job, _, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, false)
			Expect(err).To(BeNil())
			err = s.Job().Fail(context.TODO(), job.ID, model.JobError{Kind: model.ErrorKindTransient, Stage: "scrape", Message: "connection reset"})
			Expect(err).To(BeNil())

			reset, err := svc.Retry(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(reset.Status).To(Equal(model.JobStatusPending))
			Expect(reset.RetryCount).To(Equal(0))
		})

		It("refuses a job that did not fail", func() {
			job, _, err := svc.Enqueue(context.TODO(), "https://ra.co/events/2113030", 0, false)
			Expect(err).To(BeNil())
			err = s.Job().Complete(context.TODO(), job.ID, model.JobResult{})
			Expect(err).To(BeNil())

			_, err = svc.Retry(context.TODO(), job.ID)
			Expect(err).ToNot(BeNil())
			var notRetryable *service.ErrJobNotRetryable
			Expect(errors.As(err, &notRetryable)).To(BeTrue())
		})

		It("reports an unknown job", func() {
			_, err := svc.Retry(context.TODO(), uuid.New())
			Expect(err).ToNot(BeNil())
			var notFound *service.ErrJobNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from import_jobs;")
		})
	})
})
