package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchPagesTotal
	Init()
	require.Same(t, first, fetchPagesTotal)
	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, remoteCancelsTotal)
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch("https://fetch-test.example/a", "ok", 512)
	ObserveFetch("https://FETCH-TEST.example/b", "error", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(fetchPagesTotal.WithLabelValues("fetch-test.example", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(fetchPagesTotal.WithLabelValues("fetch-test.example", "error")))
	require.Equal(t, 512.0, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch-test.example")))
}

func TestObserveRemoteCancel(t *testing.T) {
	Init()
	before := testutil.ToFloat64(remoteCancelsTotal)
	ObserveRemoteCancel()
	require.Equal(t, before+1, testutil.ToFloat64(remoteCancelsTotal))
}

func TestObserveFetchWait(t *testing.T) {
	ObserveFetchWait("wait.example", 150*time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(fetchWaitSeconds, "progress_fetch_ratelimit_wait_seconds"))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveRemoteCancel()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "progress_remote_cancels_total"))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
