package cron

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

// Schedule kinds.
const (
	KindCron  = "cron"
	KindEvery = "every"
	KindAt    = "at"
)

// Job statuses recorded after each run.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @hourly.
var parser = rcron.NewParser(
	rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
)

type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Validate checks that the fields required by Kind are usable.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindCron:
		if _, err := parser.Parse(s.Expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Expr, err)
		}
	case KindEvery:
		if s.EveryMs < 1000 {
			return fmt.Errorf("every interval must be at least 1s, got %dms", s.EveryMs)
		}
	case KindAt:
		if s.AtMs <= 0 {
			return fmt.Errorf("at schedule needs a time")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

func (s Schedule) String() string {
	switch s.Kind {
	case KindCron:
		return "cron " + s.Expr
	case KindEvery:
		return "every " + (time.Duration(s.EveryMs) * time.Millisecond).String()
	case KindAt:
		return "at " + time.UnixMilli(s.AtMs).UTC().Format(time.RFC3339)
	}
	return s.Kind
}

// Payload names the tool a job runs and its input.
type Payload struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input,omitempty"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	LastResult  string `json:"lastResult,omitempty"`
}

type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	State          JobState `json:"state"`
}

// NewCronJob returns an enabled job with a fresh ID. One-shot "at" jobs are
// removed after they run.
func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	return CronJob{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Payload:        payload,
		DeleteAfterRun: schedule.Kind == KindAt,
		CreatedAtMs:    time.Now().UnixMilli(),
	}
}
