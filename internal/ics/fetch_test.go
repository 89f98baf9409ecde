package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// etagServer serves body with ETag "v1" and answers 304 to a matching
// If-None-Match. Setting fail makes every request return 500.
type etagServer struct {
	body     string
	requests atomic.Int32
	fail     atomic.Bool
}

func (s *etagServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if s.fail.Load() {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if r.Header.Get("If-None-Match") == `"v1"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", `"v1"`)
	w.Header().Set("Content-Type", "text/calendar")
	_, _ = w.Write([]byte(s.body))
}

func TestFetcherUsesETag(t *testing.T) {
	es := &etagServer{body: sampleICS}
	srv := httptest.NewServer(es)
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "test", URL: srv.URL + "/cal.ics"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, sampleICS, string(first.Body))

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), es.requests.Load())
}

func TestFetcherWithoutCacheDir(t *testing.T) {
	es := &etagServer{body: sampleICS}
	srv := httptest.NewServer(es)
	defer srv.Close()

	f := NewFetcher("", srv.Client())
	src := Source{ID: "test", URL: srv.URL}

	for i := 0; i < 2; i++ {
		res, err := f.Fetch(context.Background(), src)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
}

func TestFetcherErrorStatus(t *testing.T) {
	es := &etagServer{body: sampleICS}
	srv := httptest.NewServer(es)
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "test", URL: srv.URL}

	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	es.fail.Store(true)
	_, err = f.Fetch(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFetcherOfflineFallback(t *testing.T) {
	es := &etagServer{body: sampleICS}
	srv := httptest.NewServer(es)
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	f.OfflineFallback = true
	src := Source{ID: "test", URL: srv.URL}

	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	es.fail.Store(true)
	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, sampleICS, string(res.Body))
}

func TestFetcherEmptyURL(t *testing.T) {
	f := NewFetcher("", nil)
	_, err := f.Fetch(context.Background(), Source{})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abcd.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a.ics", NormalizeURL("webcal://example.com/a.ics"))
	assert.Equal(t, "https://example.com/a.ics", NormalizeURL(" https://example.com/a.ics "))
}
