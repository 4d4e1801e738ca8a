package jobs

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/plugins"
)

// JobContext is an interface that provides the necessary dependencies for a job to run.
// The core.App struct will implement this interface.
type JobContext interface {
	Config() *config.Config
	Repositories() *plugins.RepositoryManager
	Updates() *plugins.UpdateManager
	Notifier() *events.Notifier
	JobManager() *JobManager
}

type jobTask func(ctx JobContext) error

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type registeredJob struct {
	task    jobTask
	running bool
}

type JobManager struct {
	mu     sync.Mutex
	jobs   map[string]*registeredJob
	status map[string]*JobStatus
	appCtx JobContext // Store the app context for scheduled jobs
	wg     sync.WaitGroup
}

func NewManager(appCtx JobContext) *JobManager {
	jm := &JobManager{
		jobs:   make(map[string]*registeredJob),
		status: make(map[string]*JobStatus),
		appCtx: appCtx,
	}
	return jm
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = &registeredJob{task: task}
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts the job in the background. A job never runs twice at the
// same time; different jobs may overlap.
func (jm *JobManager) RunJob(id string, ctx JobContext) error {
	if ctx == nil {
		ctx = jm.appCtx
	}

	jm.mu.Lock()
	job, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}
	if job.running {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", id)
	}

	job.running = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.wg.Add(1)
	jm.mu.Unlock()

	log.Printf("Starting job: %s", id)
	// Run the actual task in a new goroutine so it doesn't block.
	go func() {
		defer jm.wg.Done()

		var err error
		defer func() {
			// Ensure we always update the status and unlock the job
			jm.mu.Lock()
			if r := recover(); r != nil {
				log.Printf("Job '%s' panicked: %v", id, r)
				status.Status = "failed"
				status.Message = fmt.Sprintf("Job panicked: %v", r)
			} else if err != nil {
				log.Printf("Job '%s' failed: %v", id, err)
				status.Status = "failed"
				status.Message = err.Error()
			} else {
				status.Status = "success"
				status.Message = "Job completed successfully."
			}
			status.EndTime = time.Now()
			job.running = false
			jm.mu.Unlock()
			log.Printf("Finished job: %s", id)
		}()

		err = job.task(ctx)
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}

// GetStatus returns a snapshot of every job, ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
