// Package retention periodically prunes rows that can no longer affect matching.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Task deletes rows older than now minus Keep.
type Task struct {
	Name string
	Keep time.Duration
	Run  func(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	cron    *cron.Cron
	tasks   []Task
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// New schedules tasks on schedule, a six-field cron spec or a descriptor such as "@every 1h".
func New(logger *slog.Logger, schedule string, tasks ...Task) (*Job, error) {
	j := &Job{
		cron:    cron.New(cron.WithSeconds()),
		tasks:   tasks,
		logger:  logger.With("component", "retention"),
		now:     time.Now,
		timeout: time.Minute,
	}
	if _, err := j.cron.AddFunc(schedule, j.tick); err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Job) Start() {
	j.cron.Start()
}

// Stop waits for a running tick to finish.
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Job) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("retention run failed", "err", err)
	}
}

// RunOnce runs every task once. A failing task does not stop the others.
func (j *Job) RunOnce(ctx context.Context) error {
	now := j.now()
	var errs []error
	for _, task := range j.tasks {
		cutoff := now.Add(-task.Keep)
		n, err := task.Run(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
			continue
		}
		if n > 0 {
			j.logger.Info("pruned rows", "task", task.Name, "rows", n, "cutoff", cutoff)
		}
	}
	return errors.Join(errs...)
}
