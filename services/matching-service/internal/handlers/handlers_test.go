package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptmatch/libs/auth"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTemplates struct {
	weeks   map[string]model.WeekTimePeriods
	failGet error
}

func (f *fakeTemplates) GetWeekTemplate(_ context.Context, providerID string) (model.WeekTimePeriods, error) {
	if f.failGet != nil {
		return model.WeekTimePeriods{}, f.failGet
	}
	week, ok := f.weeks[providerID]
	if !ok {
		return model.WeekTimePeriods{}, pgx.ErrNoRows
	}
	return week, nil
}

func (f *fakeTemplates) UpsertWeekTemplate(_ context.Context, providerID string, week model.WeekTimePeriods) error {
	if f.weeks == nil {
		f.weeks = map[string]model.WeekTimePeriods{}
	}
	f.weeks[providerID] = week
	return nil
}

type fakeBusy struct {
	days map[string][]model.DayAppointmentSet
}

func (f *fakeBusy) ListBusyDays(_ context.Context, ownerID string, from, to time.Time, _ *time.Location) ([]model.DayAppointmentSet, error) {
	var out []model.DayAppointmentSet
	for _, d := range f.days[ownerID] {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Monday 09:00-11:00, every other day closed.
func mondayMorning() model.WeekTimePeriods {
	return model.WeekTimePeriods{nil, {{Start: "09:00", End: "11:00"}}}
}

func newAvailability(templates TemplateStore, busy BusyStore) *AvailabilityHandler {
	h := NewAvailabilityHandler(templates, busy, planner.New(discardLogger(), planner.Config{Workers: 2}), discardLogger())
	h.now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }
	return h
}

func decodeTimes(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var resp eligibleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.EligibleTimes
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const matchBody = `{
	"week": [[], [["09:00","11:00"]], [], [], [], [], []],
	"provider_busy": [{"date": "2026-10-19", "busy_periods": [["09:00","10:00"]]}],
	"client_busy": [],
	"start_boundary_minutes": 60,
	"duration_minutes": 60
}`

func TestMatch_BusyDaysOnly(t *testing.T) {
	h := newAvailability(&fakeTemplates{}, &fakeBusy{})
	rec := httptest.NewRecorder()
	h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/v1/availability/match", strings.NewReader(matchBody)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"2026-10-19T10:00:00Z"}, decodeTimes(t, rec))
}

func TestMatch_WithRangeAndTimezone(t *testing.T) {
	body := `{
		"week": [[], [["09:00","11:00"]], [], [], [], [], []],
		"start_boundary_minutes": 60,
		"duration_minutes": 60,
		"timezone": "UTC",
		"from": "2026-10-19",
		"to": "2026-10-20"
	}`
	h := newAvailability(&fakeTemplates{}, &fakeBusy{})
	rec := httptest.NewRecorder()
	h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/v1/availability/match", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"2026-10-19T09:00:00Z", "2026-10-19T10:00:00Z"}, decodeTimes(t, rec))
}

func TestMatch_NoBusyDaysReturnsEmptyList(t *testing.T) {
	body := `{"week": [[], [], [], [], [], [], []], "start_boundary_minutes": 30, "duration_minutes": 30}`
	h := newAvailability(&fakeTemplates{}, &fakeBusy{})
	rec := httptest.NewRecorder()
	h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/v1/availability/match", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"eligible_times":[]}`, rec.Body.String())
}

func TestMatch_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind string
	}{
		{
			name: "start boundary",
			body: strings.Replace(matchBody, `"start_boundary_minutes": 60`, `"start_boundary_minutes": 7`, 1),
			kind: "InvalidStartBoundary",
		},
		{
			name: "duration",
			body: strings.Replace(matchBody, `"duration_minutes": 60`, `"duration_minutes": 0`, 1),
			kind: "InvalidDuration",
		},
		{
			name: "template time",
			body: strings.Replace(matchBody, `[["09:00","11:00"]], []`, `[["09:03","11:00"]], []`, 1),
			kind: "InvalidTime",
		},
		{
			name: "busy time",
			body: strings.Replace(matchBody, `[["09:00","10:00"]]`, `[["24:00","25:00"]]`, 1),
			kind: "InvalidTime",
		},
		{
			name: "short week",
			body: strings.Replace(matchBody, `[], [], [], [], []]`, `[], [], []]`, 1),
			kind: "InvalidWeek",
		},
		{
			name: "missing week",
			body: strings.Replace(matchBody, `"week": [[], [["09:00","11:00"]], [], [], [], [], []],`, ``, 1),
			kind: "InvalidWeek",
		},
		{
			name: "null week",
			body: strings.Replace(matchBody, `[[], [["09:00","11:00"]], [], [], [], [], []]`, `null`, 1),
			kind: "InvalidWeek",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newAvailability(&fakeTemplates{}, &fakeBusy{})
			rec := httptest.NewRecorder()
			h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/v1/availability/match", strings.NewReader(tc.body)))

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, decodeError(t, rec).Kind)
		})
	}
}

func TestMatch_RejectsUnorderedBusyDays(t *testing.T) {
	body := `{
		"week": [[], [], [], [], [], [], []],
		"provider_busy": [{"date": "2026-10-20", "busy_periods": []}, {"date": "2026-10-19", "busy_periods": []}],
		"start_boundary_minutes": 60,
		"duration_minutes": 60
	}`
	h := newAvailability(&fakeTemplates{}, &fakeBusy{})
	rec := httptest.NewRecorder()
	h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/v1/availability/match", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "ascending")
}

func TestMatch_MalformedJSONAndMethod(t *testing.T) {
	h := newAvailability(&fakeTemplates{}, &fakeBusy{})

	rec := httptest.NewRecorder()
	h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/v1/availability/match", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Match(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability/match", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAvailability_UsesStoredDataAndDropsPastTimes(t *testing.T) {
	templates := &fakeTemplates{weeks: map[string]model.WeekTimePeriods{"prov-1": mondayMorning()}}
	busy := &fakeBusy{days: map[string][]model.DayAppointmentSet{
		"client-1": {{
			Date:        time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC),
			BusyPeriods: model.DayTimePeriods{{Start: "09:00", End: "10:00"}},
		}},
	}}
	h := newAvailability(templates, busy)

	url := "/api/v1/availability?provider_id=prov-1&client_id=client-1&from=2026-10-19&to=2026-10-26" +
		"&start_boundary_minutes=60&duration_minutes=60&timezone=UTC"
	rec := httptest.NewRecorder()
	h.Availability(rec, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"2026-10-19T10:00:00Z", "2026-10-26T10:00:00Z"}, decodeTimes(t, rec))
}

func TestAvailability_Errors(t *testing.T) {
	templates := &fakeTemplates{weeks: map[string]model.WeekTimePeriods{"prov-1": mondayMorning()}}
	base := "/api/v1/availability?provider_id=%s&client_id=c&from=2026-10-19&to=%s&start_boundary_minutes=%s&duration_minutes=60"
	cases := []struct {
		name string
		url  string
		code int
	}{
		{"missing client", "/api/v1/availability?provider_id=prov-1&from=2026-10-19&to=2026-10-20", http.StatusBadRequest},
		{"unknown provider", fmt.Sprintf(base, "nobody", "2026-10-20", "60"), http.StatusNotFound},
		{"to before from", fmt.Sprintf(base, "prov-1", "2026-10-18", "60"), http.StatusBadRequest},
		{"range too long", fmt.Sprintf(base, "prov-1", "2027-10-19", "60"), http.StatusBadRequest},
		{"bad boundary", fmt.Sprintf(base, "prov-1", "2026-10-20", "45"), http.StatusBadRequest},
		{"non numeric boundary", fmt.Sprintf(base, "prov-1", "2026-10-20", "abc"), http.StatusBadRequest},
		{"bad timezone", fmt.Sprintf(base, "prov-1", "2026-10-20", "60") + "&timezone=Mars/Olympus", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newAvailability(templates, &fakeBusy{})
			rec := httptest.NewRecorder()
			h.Availability(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestAvailability_StoreFailureIs500(t *testing.T) {
	h := newAvailability(&fakeTemplates{failGet: errors.New("connection refused")}, &fakeBusy{})
	url := "/api/v1/availability?provider_id=p&client_id=c&from=2026-10-19&to=2026-10-20&start_boundary_minutes=60&duration_minutes=60"
	rec := httptest.NewRecorder()
	h.Availability(rec, httptest.NewRequest(http.MethodGet, url, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeError(t, rec).Error)
}

func TestTemplateHandler_PutThenGet(t *testing.T) {
	store := &fakeTemplates{}
	h := NewTemplateHandler(store, discardLogger())

	body := `[[], [["09:00","11:00"]], [], [], [], [], []]`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/providers/template?provider_id=prov-1", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, mondayMorning()[1], store.weeks["prov-1"][1])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/providers/template?provider_id=prov-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"provider_id":"prov-1","week":`+body+`}`, rec.Body.String())
}

func TestTemplateHandler_Errors(t *testing.T) {
	h := NewTemplateHandler(&fakeTemplates{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/providers/template", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/providers/template?provider_id=x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	bad := `[[], [["11:00","09:02"]], [], [], [], [], []]`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/providers/template?provider_id=x", strings.NewReader(bad)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidTime", decodeError(t, rec).Kind)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/providers/template?provider_id=x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTemplateHandler_PutRequiresOwnership(t *testing.T) {
	store := &fakeTemplates{}
	h := NewTemplateHandler(store, discardLogger())
	body := `[[], [["09:00","11:00"]], [], [], [], [], []]`

	put := func(claims *auth.Claims) int {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/template?provider_id=prov-1", strings.NewReader(body))
		req = req.WithContext(auth.ContextWithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, put(&auth.Claims{Sub: "prov-2", Role: auth.RoleProvider}))
	assert.Empty(t, store.weeks)
	assert.Equal(t, http.StatusOK, put(&auth.Claims{Sub: "prov-1", Role: auth.RoleProvider}))
	assert.Equal(t, http.StatusOK, put(&auth.Claims{Sub: "ops", Role: auth.RoleAdmin}))
}
