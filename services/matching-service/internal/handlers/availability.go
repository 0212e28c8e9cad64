package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/matcher"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/planner"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/slots"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/storage"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/template"
)

// maxRangeDays caps how many days one request may plan.
const maxRangeDays = 92

type TemplateStore interface {
	GetWeekTemplate(ctx context.Context, providerID string) (model.WeekTimePeriods, error)
	UpsertWeekTemplate(ctx context.Context, providerID string, week model.WeekTimePeriods) error
}

type BusyStore interface {
	ListBusyDays(ctx context.Context, ownerID string, from, to time.Time, loc *time.Location) ([]model.DayAppointmentSet, error)
}

type AvailabilityHandler struct {
	templates TemplateStore
	busy      BusyStore
	planner   *planner.Planner
	logger    *slog.Logger
	now       func() time.Time
}

func NewAvailabilityHandler(templates TemplateStore, busy BusyStore, p *planner.Planner, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		templates: templates,
		busy:      busy,
		planner:   p,
		logger:    logger,
		now:       time.Now,
	}
}

type busyDayJSON struct {
	Date        string               `json:"date"`
	BusyPeriods model.DayTimePeriods `json:"busy_periods"`
}

type matchRequest struct {
	Week                 *model.WeekTimePeriods `json:"week"`
	ProviderBusy         []busyDayJSON          `json:"provider_busy"`
	ClientBusy           []busyDayJSON          `json:"client_busy"`
	StartBoundaryMinutes int                    `json:"start_boundary_minutes"`
	DurationMinutes      int                    `json:"duration_minutes"`
	Timezone             string                 `json:"timezone"`
	From                 string                 `json:"from"`
	To                   string                 `json:"to"`
}

type eligibleResponse struct {
	EligibleTimes []string `json:"eligible_times"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Match computes eligible times from a self-contained request body.
func (h *AvailabilityHandler) Match(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	loc, err := loadLocation(req.Timezone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Week == nil {
		h.writeFailure(w, r, fmt.Errorf("week: %w", model.ErrInvalidWeek))
		return
	}
	week, err := template.New(*req.Week)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	providerBusy, err := toDays(req.ProviderBusy, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "provider_busy: "+err.Error())
		return
	}
	clientBusy, err := toDays(req.ClientBusy, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "client_busy: "+err.Error())
		return
	}

	preq := planner.Request{
		ProviderBusy: providerBusy,
		ClientBusy:   clientBusy,
		Constraint: matcher.Constraint{
			StartBoundaryMinutes: req.StartBoundaryMinutes,
			DurationMinutes:      req.DurationMinutes,
		},
	}

	var times []time.Time
	if req.From == "" && req.To == "" {
		times, err = h.planner.Plan(r.Context(), week, preq)
	} else {
		from, to, rerr := parseRange(req.From, req.To, loc)
		if rerr != nil {
			writeError(w, http.StatusBadRequest, rerr.Error())
			return
		}
		times, err = h.planner.PlanRange(r.Context(), week, from, to, preq)
	}
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(times))
}

// Availability computes eligible times for a stored provider template and the stored busy days of both parties.
// Times before now are omitted.
func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	clientID := strings.TrimSpace(q.Get("client_id"))
	if providerID == "" || clientID == "" {
		writeError(w, http.StatusBadRequest, "provider_id and client_id are required")
		return
	}
	loc, err := loadLocation(q.Get("timezone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := parseRange(q.Get("from"), q.Get("to"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	constraint, err := parseConstraint(q.Get("start_boundary_minutes"), q.Get("duration_minutes"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: errorKind(err)})
		return
	}

	ctx := r.Context()
	weekPeriods, err := h.templates.GetWeekTemplate(ctx, providerID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "provider template not found")
			return
		}
		h.writeFailure(w, r, err)
		return
	}
	week, err := template.New(weekPeriods)
	if err != nil {
		h.logger.Error("stored template is invalid", "provider_id", providerID, "err", err)
		writeError(w, http.StatusInternalServerError, "stored template is invalid")
		return
	}

	providerBusy, err := h.busy.ListBusyDays(ctx, providerID, from, to, loc)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	clientBusy, err := h.busy.ListBusyDays(ctx, clientID, from, to, loc)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	times, err := h.planner.PlanRange(ctx, week, from, to, planner.Request{
		ProviderBusy: providerBusy,
		ClientBusy:   clientBusy,
		Constraint:   constraint,
		NotBefore:    h.now(),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(times))
}

// writeFailure maps engine validation errors to 400 and everything else to 500.
func (h *AvailabilityHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if kind := errorKind(err); kind != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kind})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	h.logger.Error("availability request failed", "err", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if kind := errorKind(err); kind != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kind})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid json body")
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, slots.ErrInvalidTime):
		return "InvalidTime"
	case errors.Is(err, slots.ErrInvalidSlot):
		return "InvalidSlot"
	case errors.Is(err, slots.ErrInvalidArraySize):
		return "InvalidArraySize"
	case errors.Is(err, slots.ErrInvalidStartBoundary):
		return "InvalidStartBoundary"
	case errors.Is(err, slots.ErrInvalidDuration):
		return "InvalidDuration"
	case errors.Is(err, model.ErrInvalidWeek):
		return "InvalidWeek"
	}
	return ""
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return loc, nil
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), loc)
}

func parseRange(rawFrom, rawTo string, loc *time.Location) (time.Time, time.Time, error) {
	from, err := parseDate(rawFrom, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", rawFrom)
	}
	to, err := parseDate(rawTo, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", rawTo)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	if to.After(from.AddDate(0, 0, maxRangeDays-1)) {
		return time.Time{}, time.Time{}, fmt.Errorf("range exceeds %d days", maxRangeDays)
	}
	return from, to, nil
}

func parseConstraint(rawBoundary, rawDuration string) (matcher.Constraint, error) {
	boundary, err := strconv.Atoi(strings.TrimSpace(rawBoundary))
	if err != nil {
		return matcher.Constraint{}, fmt.Errorf("invalid start_boundary_minutes %q", rawBoundary)
	}
	duration, err := strconv.Atoi(strings.TrimSpace(rawDuration))
	if err != nil {
		return matcher.Constraint{}, fmt.Errorf("invalid duration_minutes %q", rawDuration)
	}
	c := matcher.Constraint{StartBoundaryMinutes: boundary, DurationMinutes: duration}
	if err := c.Validate(); err != nil {
		return matcher.Constraint{}, err
	}
	return c, nil
}

// toDays converts wire days, requiring strictly ascending dates.
func toDays(in []busyDayJSON, loc *time.Location) ([]model.DayAppointmentSet, error) {
	out := make([]model.DayAppointmentSet, 0, len(in))
	for i, d := range in {
		date, err := parseDate(d.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", d.Date)
		}
		if i > 0 && !date.After(out[i-1].Date) {
			return nil, fmt.Errorf("dates must be strictly ascending (%s)", d.Date)
		}
		out = append(out, model.DayAppointmentSet{Date: date, BusyPeriods: d.BusyPeriods})
	}
	return out, nil
}

func toResponse(times []time.Time) eligibleResponse {
	out := make([]string, 0, len(times))
	for _, at := range times {
		out = append(out, at.Format(time.RFC3339))
	}
	return eligibleResponse{EligibleTimes: out}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
