// Package busysync stores busy days published by the calendar ingestion pipeline. Events arrive already split
// per local date; this package only validates and persists them.
package busysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptmatch/libs/kafkax"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/consumer"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/slots"
	"github.com/segmentio/kafka-go"
)

// Topic is the default topic carrying busy-day snapshots.
const Topic = "calendar.busy_day.synced.v1"

var ErrInvalidEvent = errors.New("invalid busy day event")

// Event replaces all busy periods of one owner on one date.
type Event struct {
	OwnerID     string               `json:"owner_id"`
	Date        string               `json:"date"`
	BusyPeriods model.DayTimePeriods `json:"busy_periods"`
}

type Store interface {
	UpsertBusyDay(ctx context.Context, tx pgx.Tx, ownerID string, set model.DayAppointmentSet) error
}

type Inbox interface {
	Apply(ctx context.Context, eventID, eventType string, fn func(pgx.Tx) error) (bool, error)
}

// Decode parses and validates an event payload. Every bound must be a valid "HH:MM" and start before end.
func Decode(value []byte) (string, model.DayAppointmentSet, error) {
	var evt Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return "", model.DayAppointmentSet{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	evt.OwnerID = strings.TrimSpace(evt.OwnerID)
	if evt.OwnerID == "" {
		return "", model.DayAppointmentSet{}, fmt.Errorf("%w: owner_id is required", ErrInvalidEvent)
	}
	date, err := time.ParseInLocation(time.DateOnly, evt.Date, time.UTC)
	if err != nil {
		return "", model.DayAppointmentSet{}, fmt.Errorf("%w: date %q", ErrInvalidEvent, evt.Date)
	}
	for _, p := range evt.BusyPeriods {
		start, err := slots.TimeToSlot(p.Start)
		if err != nil {
			return "", model.DayAppointmentSet{}, err
		}
		end, err := slots.TimeToSlot(p.End)
		if err != nil {
			return "", model.DayAppointmentSet{}, err
		}
		if start >= end {
			return "", model.DayAppointmentSet{}, fmt.Errorf("%w: period %s-%s ends before it starts", ErrInvalidEvent, p.Start, p.End)
		}
	}
	if evt.BusyPeriods == nil {
		evt.BusyPeriods = model.DayTimePeriods{}
	}
	return evt.OwnerID, model.DayAppointmentSet{Date: date, BusyPeriods: evt.BusyPeriods}, nil
}

// NewHandler applies each event once. Malformed events are logged and dropped.
func NewHandler(inbox Inbox, store Store, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		ownerID, set, err := Decode(msg.Value)
		if err != nil {
			logger.Error("dropping busy day event", "err", err, "offset", msg.Offset)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)
		applied, err := inbox.Apply(ctx, meta.EventID, meta.EventType, func(tx pgx.Tx) error {
			return store.UpsertBusyDay(ctx, tx, ownerID, set)
		})
		if err != nil {
			return fmt.Errorf("store busy day for %s: %w", ownerID, err)
		}
		if !applied {
			logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		logger.Debug("busy day stored", "owner_id", ownerID, "date", set.Date.Format(time.DateOnly), "periods", len(set.BusyPeriods))
		return nil
	}
}
