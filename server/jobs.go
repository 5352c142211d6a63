// Package server exposes the scraper as an asynchronous job API: submit a PIN
// range, poll progress, download the compiled spreadsheet.
package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mydiplomaclassresults/sbtet-scraper/scraper"
	"github.com/robfig/cron/v3"
)

// Status is the lifecycle state of a scraping job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobCompleted is returned when cancelling an already completed job.
	ErrJobCompleted = errors.New("cannot cancel completed job")
)

// ScrapeRequest is the job submission payload.
type ScrapeRequest struct {
	Year        string `json:"year"`
	CollegeCode string `json:"college_code"`
	BranchCode  string `json:"branch_code"`
	StartPin    int    `json:"start_pin"`
	EndPin      int    `json:"end_pin"`
	Semester    string `json:"semester"`
}

// Job is the bookkeeping record for one scrape run.
type Job struct {
	ID        string        `json:"job_id"`
	Request   ScrapeRequest `json:"request"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Progress  float64       `json:"progress_percentage"`
	Processed int           `json:"processed_count"`
	Total     int           `json:"total_count"`
	Succeeded int           `json:"success_count"`
	Failed    int           `json:"failed_count"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	scraper *scraper.Scraper
}

// artifactCacheSize bounds how many compiled workbooks are kept in memory.
const artifactCacheSize = 16

// Store owns all job state. The core never touches it; each scrape run gets
// its own scraper instance and the store only holds the bookkeeping.
type Store struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	artifacts *lru.Cache[string, []byte]
	ttl       time.Duration
	cron      *cron.Cron
}

// NewStore builds a job store that cleans up stale jobs on a schedule.
func NewStore(ttl time.Duration) (*Store, error) {
	artifacts, err := lru.New[string, []byte](artifactCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		jobs:      make(map[string]*Job),
		artifacts: artifacts,
		ttl:       ttl,
		cron:      cron.New(),
	}
	if _, err := s.cron.AddFunc("@every 10m", s.Cleanup); err != nil {
		return nil, err
	}
	s.cron.Start()
	return s, nil
}

// Close stops the cleanup schedule.
func (s *Store) Close() {
	s.cron.Stop()
}

// Create registers a new pending job.
func (s *Store) Create(req ScrapeRequest) Job {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusPending,
		Message:   "Job created, waiting to start",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

// Snapshot returns a copy of the job, with live progress pulled from the
// scraper when the run is still going.
func (s *Store) Snapshot(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	if job.Status == StatusInProgress && job.scraper != nil {
		job.Progress = job.scraper.GetProgress()
		job.Processed, job.Total, job.Succeeded, job.Failed = job.scraper.Counts()
	}
	return *job, true
}

// Update applies fn to the job under the store lock.
func (s *Store) Update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return true
}

// AttachScraper links a running scraper to its job for live progress reads.
func (s *Store) AttachScraper(id string, sc *scraper.Scraper) {
	s.Update(id, func(job *Job) {
		job.scraper = sc
	})
}

// DetachScraper releases the scraper once the run is over.
func (s *Store) DetachScraper(id string) {
	s.Update(id, func(job *Job) {
		job.scraper = nil
	})
}

// List returns copies of all known jobs.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// ActiveCount reports how many jobs are pending or running.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusInProgress {
			count++
		}
	}
	return count
}

// Cancel marks a job as failed. In-flight worker calls are not interrupted;
// they run to completion or timeout on their own.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == StatusCompleted {
		return ErrJobCompleted
	}
	job.Status = StatusFailed
	job.Message = "Job cancelled by user"
	job.UpdatedAt = time.Now()
	job.scraper = nil
	return nil
}

// SetArtifact stores a completed job's workbook bytes.
func (s *Store) SetArtifact(id string, data []byte) {
	s.artifacts.Add(id, data)
}

// Artifact returns a completed job's workbook bytes if still cached.
func (s *Store) Artifact(id string) ([]byte, bool) {
	return s.artifacts.Get(id)
}

// Cleanup removes jobs older than the TTL along with their artifacts.
func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			s.artifacts.Remove(id)
			slog.Info("cleaned up stale job", slog.String("job_id", id))
		}
	}
}
