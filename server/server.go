package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mydiplomaclassresults/sbtet-scraper/config"
	"github.com/mydiplomaclassresults/sbtet-scraper/report"
	"github.com/mydiplomaclassresults/sbtet-scraper/scraper"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server wires the job store and the scraper into an HTTP API.
type Server struct {
	cfg     *config.Config
	store   *Store
	metrics *scraper.Metrics
	app     *fiber.App
}

// New builds the API server. Metrics are shared by every scrape run so a
// single registry covers the process.
func New(cfg *config.Config, metrics *scraper.Metrics) (*Server, error) {
	store, err := NewStore(cfg.JobTTL)
	if err != nil {
		return nil, fmt.Errorf("create job store: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		app:     fiber.New(fiber.Config{AppName: "sbtet-results-api"}),
	}

	api := s.app.Group("/api")
	api.Post("/start-scraping", s.handleStart)
	api.Get("/status/:id", s.handleStatus)
	api.Get("/download/:id", s.handleDownload)
	api.Get("/jobs", s.handleList)
	api.Delete("/jobs/:id", s.handleCancel)
	api.Get("/test-connection", s.handleTestConnection)

	return s, nil
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves the API until shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown stops the cleanup schedule and the listener.
func (s *Server) Shutdown() error {
	s.store.Close()
	return s.app.Shutdown()
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	req := ScrapeRequest{
		Year:        "22",
		CollegeCode: "008",
		BranchCode:  "CM",
		StartPin:    1,
		EndPin:      67,
		Semester:    "5",
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "invalid request body",
		})
	}

	if req.StartPin >= req.EndPin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "start_pin must be less than end_pin",
		})
	}
	if req.EndPin-req.StartPin > s.cfg.MaxPinsPerJob {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": fmt.Sprintf("maximum %d students per request", s.cfg.MaxPinsPerJob),
		})
	}
	if s.store.ActiveCount() >= s.cfg.MaxActiveJobs {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"detail": "too many active jobs",
		})
	}

	job := s.store.Create(req)
	go s.runJob(job.ID, req)

	return c.JSON(fiber.Map{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Scraping job started successfully",
	})
}

// runJob executes one scrape run in the background and records the outcome.
func (s *Server) runJob(id string, req ScrapeRequest) {
	s.store.Update(id, func(job *Job) {
		job.Status = StatusInProgress
		job.Total = req.EndPin - req.StartPin
		job.Message = fmt.Sprintf("Processing %d students", job.Total)
	})

	sc, err := scraper.New(s.cfg, s.metrics)
	if err != nil {
		s.failJob(id, fmt.Errorf("initialise scraper: %w", err))
		return
	}
	s.store.AttachScraper(id, sc)
	defer s.store.DetachScraper(id)

	slog.Info("starting scraping job", slog.String("job_id", id))
	buf, summary, err := sc.ScrapeResults(
		context.Background(),
		req.Year, req.BranchCode, req.CollegeCode,
		req.StartPin, req.EndPin, req.Semester,
	)

	if summary != nil {
		s.store.Update(id, func(job *Job) {
			job.Processed = summary.Total
			job.Succeeded = summary.Succeeded
			job.Failed = summary.Failed
		})
	}
	if err != nil {
		s.failJob(id, err)
		return
	}

	s.store.SetArtifact(id, buf.Bytes())
	s.store.Update(id, func(job *Job) {
		job.Status = StatusCompleted
		job.Progress = 100
		job.Message = "Scraping completed successfully"
	})
	slog.Info("scraping job completed", slog.String("job_id", id))
}

func (s *Server) failJob(id string, err error) {
	slog.Error("scraping job failed", slog.String("job_id", id), slog.Any("error", err))
	s.store.Update(id, func(job *Job) {
		job.Status = StatusFailed
		job.Message = fmt.Sprintf("Scraping failed: %v", err)
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	job, ok := s.store.Snapshot(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": "job not found"})
	}

	var eta *int
	if job.Status == StatusInProgress && job.Progress > 0 {
		elapsed := time.Since(job.CreatedAt).Seconds()
		remaining := int(elapsed / job.Progress * (100 - job.Progress))
		eta = &remaining
	}

	return c.JSON(fiber.Map{
		"job_id":                   job.ID,
		"status":                   job.Status,
		"progress_percentage":      job.Progress,
		"processed_count":          job.Processed,
		"total_count":              job.Total,
		"success_count":            job.Succeeded,
		"failed_count":             job.Failed,
		"estimated_time_remaining": eta,
		"message":                  job.Message,
		"created_at":               job.CreatedAt,
		"updated_at":               job.UpdatedAt,
	})
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	job, ok := s.store.Snapshot(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": "job not found"})
	}
	if job.Status != StatusCompleted {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": fmt.Sprintf("job is not completed, current status: %s", job.Status),
		})
	}
	data, ok := s.store.Artifact(job.ID)
	if !ok {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"detail": "result is no longer available",
		})
	}

	filename := report.Filename(
		job.Request.Year, job.Request.CollegeCode,
		job.Request.BranchCode, job.Request.Semester,
	)
	c.Set(fiber.HeaderContentType, xlsxMIME)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Send(data)
}

func (s *Server) handleList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active_jobs": s.store.ActiveCount(),
		"jobs":        s.store.List(),
	})
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	switch err := s.store.Cancel(c.Params("id")); err {
	case nil:
		return c.JSON(fiber.Map{"message": "Job cancelled successfully"})
	case ErrJobNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": err.Error()})
	case ErrJobCompleted:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
	}
}

func (s *Server) handleTestConnection(c *fiber.Ctx) error {
	sc, err := scraper.New(s.cfg, s.metrics)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
	}

	ctx := c.UserContext()
	diagnostics := sc.Diagnose(ctx)

	action, fieldCount, err := sc.FormStructure(ctx)
	if err != nil {
		return c.JSON(fiber.Map{
			"status":      "error",
			"message":     fmt.Sprintf("failed to analyze portal form: %v", err),
			"diagnostics": diagnostics,
			"suggestions": []string{
				"Check if the portal is accessible from this network",
				"Verify firewall allows outbound HTTPS connections",
				"Try again later, the portal may be temporarily down",
			},
		})
	}

	return c.JSON(fiber.Map{
		"status":      "success",
		"message":     fmt.Sprintf("connected to portal via %s", sc.WorkingURL()),
		"form_action": action,
		"form_fields": fieldCount,
		"diagnostics": diagnostics,
	})
}
