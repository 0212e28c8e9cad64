package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptmatch/libs/db"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetWeekTemplate(ctx context.Context, providerID string) (model.WeekTimePeriods, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT periods
		FROM provider_week_templates
		WHERE provider_id = $1
	`, providerID).Scan(&raw)
	if err != nil {
		return model.WeekTimePeriods{}, err
	}
	var week model.WeekTimePeriods
	if err := json.Unmarshal(raw, &week); err != nil {
		return model.WeekTimePeriods{}, fmt.Errorf("decode template for %s: %w", providerID, err)
	}
	return week, nil
}

func (r *Repository) UpsertWeekTemplate(ctx context.Context, providerID string, week model.WeekTimePeriods) error {
	raw, err := json.Marshal(week)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO provider_week_templates (provider_id, periods)
		VALUES ($1, $2)
		ON CONFLICT (provider_id) DO UPDATE
		SET periods = EXCLUDED.periods,
			updated_at = now()
	`, providerID, raw)
	return err
}

// ListBusyDays returns ownerID's busy days in [from, to] ascending by date. Dates are returned as midnight in loc.
func (r *Repository) ListBusyDays(ctx context.Context, ownerID string, from, to time.Time, loc *time.Location) ([]model.DayAppointmentSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, periods
		FROM busy_days
		WHERE owner_id = $1
			AND day >= $2::date
			AND day <= $3::date
		ORDER BY day ASC
	`, ownerID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []model.DayAppointmentSet
	for rows.Next() {
		var day time.Time
		var raw []byte
		if err := rows.Scan(&day, &raw); err != nil {
			return nil, err
		}
		var periods model.DayTimePeriods
		if err := json.Unmarshal(raw, &periods); err != nil {
			return nil, fmt.Errorf("decode busy periods for %s on %s: %w", ownerID, day.Format(time.DateOnly), err)
		}
		days = append(days, model.DayAppointmentSet{
			Date:        time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc),
			BusyPeriods: periods,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return days, nil
}

// UpsertBusyDay replaces the busy periods stored for ownerID on set's date.
func (r *Repository) UpsertBusyDay(ctx context.Context, tx pgx.Tx, ownerID string, set model.DayAppointmentSet) error {
	raw, err := json.Marshal(set.BusyPeriods)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO busy_days (owner_id, day, periods)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (owner_id, day) DO UPDATE
		SET periods = EXCLUDED.periods,
			updated_at = now()
	`, ownerID, set.Date.Format(time.DateOnly), raw)
	return err
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// DeleteBusyDaysBefore removes busy days dated before cutoff's calendar date.
func (r *Repository) DeleteBusyDaysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM busy_days WHERE day < $1::date`, cutoff.Format(time.DateOnly))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
