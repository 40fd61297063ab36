package crawler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"local-rag-platform/internal/logger"
)

// Scheduler runs recurring jobs: scheduled recrawls and periodic
// watch-directory rescans.
type Scheduler struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() *Scheduler {
	return &Scheduler{scheduler: gocron.NewScheduler(time.UTC)}
}

// Start begins executing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
	logger.Info("Scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	logger.Info("Scheduler stopped")
}

// ScheduleCron registers a job on a cron expression. The tag lets the
// job be removed later, e.g. when its crawl is deleted.
func (s *Scheduler) ScheduleCron(tag, cronExpr string, job func()) error {
	_, err := s.scheduler.Cron(cronExpr).Tag(tag).Do(job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%s): %w", tag, cronExpr, err)
	}
	logger.Info("Scheduled job", "tag", tag, "cron", cronExpr)
	return nil
}

// ScheduleInterval registers a job that runs every interval.
func (s *Scheduler) ScheduleInterval(tag string, interval time.Duration, job func()) error {
	_, err := s.scheduler.Every(interval).Tag(tag).Do(job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", tag, err)
	}
	return nil
}

// RemoveByTag drops all jobs registered under a tag.
func (s *Scheduler) RemoveByTag(tag string) {
	if err := s.scheduler.RemoveByTag(tag); err != nil {
		logger.Debug("No scheduled jobs removed", "tag", tag, "error", err)
	}
}

// JobCount reports how many jobs are currently scheduled.
func (s *Scheduler) JobCount() int {
	return len(s.scheduler.Jobs())
}
