// Package planner turns a week template and two parties' busy days into the ordered list of times at which a
// new appointment can start.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/matcher"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/merge"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/slots"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/template"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

type Config struct {
	// Workers bounds how many days are matched concurrently. Values below 1 mean defaultWorkers.
	Workers int
}

type Planner struct {
	logger  *slog.Logger
	workers int
}

// Request is one matching call. ProviderBusy and ClientBusy must each be ascending by date.
type Request struct {
	ProviderBusy []model.DayAppointmentSet
	ClientBusy   []model.DayAppointmentSet
	Constraint   matcher.Constraint
	// NotBefore drops eligible times strictly earlier than it. Zero keeps everything.
	NotBefore time.Time
}

func New(logger *slog.Logger, cfg Config) *Planner {
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	return &Planner{logger: logger, workers: cfg.Workers}
}

// Plan matches every day that appears in either busy sequence.
func (p *Planner) Plan(ctx context.Context, week *template.Weekly, req Request) ([]time.Time, error) {
	if err := req.Constraint.Validate(); err != nil {
		return nil, err
	}
	days := merge.Days(req.ProviderBusy, req.ClientBusy)
	return p.run(ctx, week, days, req)
}

// PlanRange matches every calendar date from from through to inclusive, in from's location. Busy entries outside
// the range are ignored; dates without busy entries are matched against the template alone.
func (p *Planner) PlanRange(ctx context.Context, week *template.Weekly, from, to time.Time, req Request) ([]time.Time, error) {
	if err := req.Constraint.Validate(); err != nil {
		return nil, err
	}
	busy := merge.Days(req.ProviderBusy, req.ClientBusy)
	days := merge.Days(merge.Clip(busy, from, to), merge.Span(from, to))
	return p.run(ctx, week, days, req)
}

func (p *Planner) run(ctx context.Context, week *template.Weekly, days []model.DayAppointmentSet, req Request) ([]time.Time, error) {
	ctx, span := otel.Tracer("planner").Start(ctx, "planner.match",
		trace.WithAttributes(
			attribute.Int("planner.days", len(days)),
			attribute.Int("planner.start_boundary_minutes", req.Constraint.StartBoundaryMinutes),
			attribute.Int("planner.duration_minutes", req.Constraint.DurationMinutes),
		),
	)
	defer span.End()

	perDay := make([][]time.Time, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range days {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			times, err := matchDay(week, days[i], req)
			if err != nil {
				return fmt.Errorf("%s: %w", days[i].Date.Format(time.DateOnly), err)
			}
			perDay[i] = times
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out []time.Time
	for _, times := range perDay {
		out = append(out, times...)
	}
	span.SetAttributes(attribute.Int("planner.eligible", len(out)))
	p.logger.Debug("match planned", "days", len(days), "eligible", len(out))
	return out, nil
}

// matchDay allocates its own grids so days can run concurrently.
func matchDay(week *template.Weekly, day model.DayAppointmentSet, req Request) ([]time.Time, error) {
	free, err := slots.FreeGrid(day.BusyPeriods)
	if err != nil {
		return nil, err
	}
	if week.Closed(day.Date.Weekday()) {
		return nil, nil
	}
	eligible, err := matcher.Match(week.ForDate(day.Date), free, req.Constraint)
	if err != nil {
		return nil, err
	}

	var out []time.Time
	for _, idx := range eligible.Indices() {
		at, err := slots.SlotToTime(idx, day.Date)
		if errors.Is(err, slots.ErrSkippedTime) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !req.NotBefore.IsZero() && at.Before(req.NotBefore) {
			continue
		}
		out = append(out, at)
	}
	return out, nil
}
