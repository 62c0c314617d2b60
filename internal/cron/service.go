// Package cron runs catalog tools on a schedule. Jobs persist as JSON so the
// CLI can manage them while no scheduler is running.
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc runs one job and returns a short result for the job state.
type JobFunc func(ctx context.Context, job CronJob) (string, error)

type Service struct {
	storePath string
	log       zerolog.Logger

	mu       sync.Mutex
	loaded   bool
	jobs     []CronJob
	OnJob    JobFunc
	cron     *rcron.Cron
	entryMap map[string]rcron.EntryID // job ID -> cron entry ID
	runCtx   context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	tick     time.Duration
}

func NewService(storePath string, log zerolog.Logger) *Service {
	return &Service{
		storePath: storePath,
		log:       log.With().Str("component", "cron").Logger(),
		entryMap:  make(map[string]rcron.EntryID),
		tick:      time.Second,
	}
}

// Start schedules every enabled job and returns immediately. The scheduler
// stops when ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})

	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.log.Warn().Err(err).Msg("failed to load jobs")
	}
	s.runCtx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	s.cron = rcron.New(rcron.WithParser(parser))
	for i := range s.jobs {
		if s.jobs[i].Enabled && s.jobs[i].Schedule.Kind == KindCron {
			s.registerJob(&s.jobs[i])
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("jobs", count).Msg("started")

	go s.tickLoop(runCtx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// registerJob must be called with s.mu held.
func (s *Service) registerJob(job *CronJob) {
	jobCopy := *job
	id, err := s.cron.AddFunc(job.Schedule.Expr, func() {
		s.executeJob(s.context(), jobCopy)
	})
	if err != nil {
		s.log.Error().Err(err).Str("job", job.Name).Str("expr", job.Schedule.Expr).Msg("failed to register job")
		return
	}
	s.entryMap[job.ID] = id
}

// unregisterJob must be called with s.mu held.
func (s *Service) unregisterJob(id string) {
	if entryID, ok := s.entryMap[id]; ok {
		if s.cron != nil {
			s.cron.Remove(entryID)
		}
		delete(s.entryMap, id)
	}
}

func (s *Service) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

func (s *Service) executeJob(ctx context.Context, job CronJob) (string, error) {
	s.log.Info().Str("job", job.Name).Str("id", job.ID).Str("tool", job.Payload.Tool).Msg("executing job")

	if s.OnJob == nil {
		s.log.Warn().Msg("no OnJob handler set")
		return "", errors.New("no job handler configured")
	}

	result, err := s.OnJob(ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != job.ID {
			continue
		}
		state := &s.jobs[i].State
		state.LastRunAtMs = time.Now().UnixMilli()
		state.LastResult = truncate(result, 500)
		if err != nil {
			state.LastStatus = StatusError
			state.LastError = err.Error()
			s.log.Warn().Str("job", job.Name).Err(err).Msg("job failed")
		} else {
			state.LastStatus = StatusOK
			state.LastError = ""
			s.log.Info().Str("job", job.Name).Str("result", truncate(result, 100)).Msg("job done")
		}

		if s.jobs[i].DeleteAfterRun {
			s.unregisterJob(job.ID)
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		}
		break
	}

	if saveErr := s.save(); saveErr != nil {
		s.log.Error().Err(saveErr).Msg("save jobs")
	}
	return result, err
}

func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, job := range s.dueJobs(time.Now().UnixMilli()) {
				s.executeJob(ctx, job)
			}
		case <-ctx.Done():
			return
		}
	}
}

// dueJobs returns the every/at jobs that should run at now. It advances
// their state first so a slow run is not started twice.
func (s *Service) dueJobs(now int64) []CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []CronJob
	for i := range s.jobs {
		job := &s.jobs[i]
		if !job.Enabled {
			continue
		}
		switch job.Schedule.Kind {
		case KindEvery:
			if job.Schedule.EveryMs > 0 && now >= job.State.LastRunAtMs+job.Schedule.EveryMs {
				job.State.LastRunAtMs = now
				due = append(due, *job)
			}
		case KindAt:
			if job.Schedule.AtMs > 0 && now >= job.Schedule.AtMs {
				job.Enabled = false
				due = append(due, *job)
			}
		}
	}
	return due
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	c := s.cron
	s.cancel = nil
	s.stopCh = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-time.After(5 * time.Second):
			s.log.Warn().Msg("stop timeout waiting for running jobs")
		}
	}
	s.log.Info().Msg("stopped")
}

func (s *Service) AddJob(name string, schedule Schedule, payload Payload) (*CronJob, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if payload.Tool == "" {
		return nil, errors.New("job needs a tool")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	job := NewCronJob(name, schedule, payload)
	s.jobs = append(s.jobs, job)

	if job.Schedule.Kind == KindCron && s.cron != nil {
		s.registerJob(&s.jobs[len(s.jobs)-1])
	}
	if err := s.save(); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}
	return &job, nil
}

func (s *Service) RemoveJob(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return false, fmt.Errorf("load jobs: %w", err)
	}

	for i, job := range s.jobs {
		if job.ID == id {
			s.unregisterJob(id)
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return true, s.save()
		}
	}
	return false, nil
}

func (s *Service) ListJobs() ([]CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	result := make([]CronJob, len(s.jobs))
	copy(result, s.jobs)
	return result, nil
}

func (s *Service) EnableJob(id string, enabled bool) (*CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		s.jobs[i].Enabled = enabled
		if s.jobs[i].Schedule.Kind == KindCron && s.cron != nil {
			if enabled {
				if _, ok := s.entryMap[id]; !ok {
					s.registerJob(&s.jobs[i])
				}
			} else {
				s.unregisterJob(id)
			}
		}
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("save jobs: %w", err)
		}
		job := s.jobs[i]
		return &job, nil
	}
	return nil, fmt.Errorf("job %s not found", id)
}

// RunJob runs a job immediately, regardless of its schedule, and records
// the outcome.
func (s *Service) RunJob(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("load jobs: %w", err)
	}
	var job *CronJob
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			j := s.jobs[i]
			job = &j
			break
		}
	}
	s.mu.Unlock()

	if job == nil {
		return "", fmt.Errorf("job %s not found", id)
	}
	return s.executeJob(ctx, *job)
}

// ensureLoaded must be called with s.mu held.
func (s *Service) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &s.jobs); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0o644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
