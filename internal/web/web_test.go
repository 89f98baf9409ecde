package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcal/internal/calendar"
	"termcal/internal/config"
	"termcal/internal/model"
	"termcal/internal/resolver"
)

var fixedNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func testEvents() []model.Event {
	return []model.Event{
		{
			UID:         "standup",
			InstanceKey: "standup@2024-03-10T09:00:00Z",
			Summary:     "Standup",
			Start:       time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			End:         time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC),
		},
		{
			UID:     "trip",
			Summary: "Trip",
			AllDay:  true,
			Start:   time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC),
			End:     time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, src resolver.Source) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Timezone = "UTC"
	}
	r := resolver.New(src,
		resolver.WithClock(func() time.Time { return fixedNow }),
		resolver.WithLocation(time.UTC),
	)
	s := NewServer(cfg, r)
	s.now = func() time.Time { return fixedNow }
	return s
}

func staticSource(events []model.Event) resolver.Source {
	return resolver.SourceFunc(func(context.Context, calendar.Date, calendar.Date) ([]model.Event, error) {
		return events, nil
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, staticSource(nil))

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGrid(t *testing.T) {
	s := newTestServer(t, nil, staticSource(testEvents()))

	rec := get(t, s.Handler(), "/api/grid?year=2024&month=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp gridResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2024, resp.Year)
	assert.Equal(t, 3, resp.Month)
	assert.Equal(t, "UTC", resp.Timezone)
	require.Len(t, resp.Weeks, 6)

	first := resp.Weeks[0][0]
	assert.Equal(t, calendar.NewDate(2024, time.February, 25), first.Date)
	assert.False(t, first.InMonth)

	byDate := map[calendar.Date]dayDTO{}
	for _, week := range resp.Weeks {
		require.Len(t, week, 7)
		for _, d := range week {
			byDate[d.Date] = d
		}
	}

	standup := byDate[calendar.NewDate(2024, time.March, 10)]
	assert.True(t, standup.InMonth)
	require.Len(t, standup.Events, 1)
	assert.Equal(t, "Standup", standup.Events[0].Summary)

	for _, d := range []calendar.Date{
		calendar.NewDate(2024, time.March, 30),
		calendar.NewDate(2024, time.March, 31),
	} {
		require.Len(t, byDate[d].Events, 1, d.String())
		assert.True(t, byDate[d].Events[0].AllDay)
	}
	assert.Empty(t, byDate[calendar.NewDate(2024, time.March, 11)].Events)

	// Trailing days resolve against April, where the trip did not start.
	april1 := byDate[calendar.NewDate(2024, time.April, 1)]
	assert.False(t, april1.InMonth)
	assert.Empty(t, april1.Events)
}

func TestGridDefaultsToCurrentMonth(t *testing.T) {
	s := newTestServer(t, nil, staticSource(nil))

	rec := get(t, s.Handler(), "/api/grid")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp gridResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2024, resp.Year)
	assert.Equal(t, 3, resp.Month)
}

func TestGridInvalidParams(t *testing.T) {
	s := newTestServer(t, nil, staticSource(nil))

	for _, target := range []string{
		"/api/grid?year=abc&month=3",
		"/api/grid?year=2024&month=x",
		"/api/grid?year=2024&month=13",
		"/api/grid?year=2024&month=0",
		"/api/grid?year=0&month=1",
	} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"error"`, target)
	}
}

func TestEvents(t *testing.T) {
	s := newTestServer(t, nil, staticSource(testEvents()))

	rec := get(t, s.Handler(), "/api/events?date=2024-03-10")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, calendar.NewDate(2024, time.March, 10), resp.Date)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "standup", resp.Events[0].UID)
	assert.Equal(t, "standup@2024-03-10T09:00:00Z", resp.Events[0].ID)
	require.NotNil(t, resp.Events[0].Start)
	assert.True(t, resp.Events[0].Start.Equal(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)))
}

func TestEventsEmptyDayIsEmptyArray(t *testing.T) {
	s := newTestServer(t, nil, staticSource(testEvents()))

	rec := get(t, s.Handler(), "/api/events?date=2024-03-11")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
}

func TestEventsInvalidDate(t *testing.T) {
	s := newTestServer(t, nil, staticSource(nil))

	rec := get(t, s.Handler(), "/api/events?date=10/03/2024")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchErrorIsBadGateway(t *testing.T) {
	src := resolver.SourceFunc(func(context.Context, calendar.Date, calendar.Date) ([]model.Event, error) {
		return nil, errors.New("connection refused")
	})
	s := newTestServer(t, nil, src)

	for _, target := range []string{"/api/grid?year=2024&month=3", "/api/events?date=2024-03-10"} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusBadGateway, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "connection refused", target)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	s := newTestServer(t, cfg, staticSource(nil))
	h := s.Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/api/events?date=2024-03-10")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/events?date=2024-03-10", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events?date=2024-03-10", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthEmptyCredentialsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{}
	s := newTestServer(t, cfg, staticSource(nil))

	rec := get(t, s.Handler(), "/api/events?date=2024-03-10")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil, staticSource(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/grid", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
