package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/cachecrawler/internal/cache"
	"github.com/ocx/cachecrawler/internal/crawler"
)

func newTestServer(t *testing.T) (*Server, *cache.Cache) {
	t.Helper()
	c := cache.New([]int{1})
	sched := crawler.NewScheduler(c.Collaborators(), crawler.PaceConfig{CrawlsPerSleep: 1000, SleepFor: time.Microsecond}, nil)
	sched.Start()
	t.Cleanup(func() { sched.Stop(true) })
	return NewServer(sched, c, nil), c
}

func TestHandleStartDispatchesScan(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Slabs: "all", ScanType: "expire"})
	resp, err := http.Post(ts.URL+"/crawler/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "OK", out["result"])
}

func TestHandleStartRejectsUnknownScanType(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Slabs: "all", ScanType: "bogus"})
	resp, err := http.Post(ts.URL+"/crawler/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStatsReportsClassStats(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/crawler/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out, "class_stats")
	assert.Contains(t, out, "running")
}

func TestHandlePauseAndResume(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/crawler/pause", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/crawler/resume", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
