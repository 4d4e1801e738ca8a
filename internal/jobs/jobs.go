package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
)

const (
	UpdateCheckJob    = "update-check"
	RepositorySyncJob = "repository-sync"
	ApplyUpdatesJob   = "apply-updates"
)

// RegisterJobs registers every plugin-system job with jm.
func RegisterJobs(jm *JobManager) {
	jm.Register(UpdateCheckJob, "Check for plugin updates", RunUpdateCheck)
	jm.Register(RepositorySyncJob, "Synchronize repositories", RunRepositorySync)
	jm.Register(ApplyUpdatesJob, "Apply all plugin updates", RunApplyUpdates)
}

// RunUpdateCheck runs an incremental update check.
func RunUpdateCheck(app JobContext) error {
	found, err := app.Updates().CheckForUpdates(context.Background(), models.CheckOptions{})
	if err != nil {
		return err
	}
	log.Printf("Scheduled update check found %d update(s)", len(found))
	return nil
}

// RunRepositorySync syncs every enabled repository. The job fails when any
// repository fails, after all of them were attempted.
func RunRepositorySync(app JobContext) error {
	result := app.Repositories().SyncAllRepositories(context.Background())
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d repositories failed to sync",
			len(result.Failed), len(result.Failed)+len(result.Successful))
	}
	return nil
}

// RunApplyUpdates applies every pending update.
func RunApplyUpdates(app JobContext) error {
	result := app.Updates().ApplyAllUpdates(context.Background())
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d updates failed",
			len(result.Failed), len(result.Failed)+len(result.Successful))
	}
	return nil
}

// Scheduler drives the periodic jobs. The update check follows the update
// settings and is rescheduled whenever they change.
type Scheduler struct {
	cron *gocron.Scheduler
	app  JobContext

	mu             sync.Mutex
	updateJob      *gocron.Job
	updateInterval time.Duration
	unsubscribe    func()
}

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) *Scheduler {
	s := &Scheduler{
		cron: gocron.NewScheduler(time.UTC),
		app:  app,
	}
	s.cron.SingletonModeAll()

	s.startRepositorySyncJob()
	s.scheduleUpdateCheck(app.Updates().GetUpdateSettings())

	s.unsubscribe = app.Notifier().Subscribe(events.UpdateSettingsChanged, func(e events.Event) {
		if settings, ok := e.Payload.(models.UpdateSettings); ok {
			s.scheduleUpdateCheck(settings)
		}
	})

	log.Println("Starting background job scheduler...")
	s.cron.StartAsync()
	return s
}

// Stop unsubscribes from settings changes and stops the scheduler.
func (s *Scheduler) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cron.Stop()
}

// UpdateCheckInterval returns the current update check interval, or 0 when
// automatic checks are off.
func (s *Scheduler) UpdateCheckInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateInterval
}

func (s *Scheduler) scheduleUpdateCheck(settings models.UpdateSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interval := time.Duration(settings.CheckInterval) * time.Millisecond
	if !settings.CheckAutomatically || interval <= 0 {
		interval = 0
	}
	if interval == s.updateInterval && (interval == 0 || s.updateJob != nil) {
		return
	}

	if s.updateJob != nil {
		s.cron.RemoveByReference(s.updateJob)
		s.updateJob = nil
	}
	s.updateInterval = interval
	if interval == 0 {
		log.Printf("Automatic update checks are disabled.")
		return
	}

	log.Printf("Scheduling job: '%s' to run every %s.", UpdateCheckJob, interval)
	job, err := s.cron.Every(interval).WaitForSchedule().Tag(UpdateCheckJob).Do(s.trigger, UpdateCheckJob)
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", UpdateCheckJob, err)
		s.updateInterval = 0
		return
	}
	s.updateJob = job
}

func (s *Scheduler) startRepositorySyncJob() {
	interval := s.app.Config().Sync.Interval
	if interval <= 0 {
		log.Println("Repository sync interval is 0, scheduled sync is disabled.")
		return
	}

	log.Printf("Scheduling job: '%s' to run every %d minutes.", RepositorySyncJob, interval)
	_, err := s.cron.Every(interval).Minutes().Tag(RepositorySyncJob).Do(s.trigger, RepositorySyncJob)
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", RepositorySyncJob, err)
	}
}

// trigger submits the job to the manager instead of running it directly,
// so scheduled and manual runs never overlap.
func (s *Scheduler) trigger(id string) {
	log.Println("Scheduler is triggering job:", id)
	if err := s.app.JobManager().RunJob(id, s.app); err != nil {
		log.Printf("Scheduled job '%s' could not start: %v", id, err)
	}
}
