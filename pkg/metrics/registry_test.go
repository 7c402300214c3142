package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsNilWhenDisabled(t *testing.T) {
	// The registry is process-wide; only meaningful before InitRegistry
	// has run in this test binary.
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}

	assert.Nil(t, NewCacheMetrics())
	assert.Nil(t, NewFetcherMetrics())
	assert.Nil(t, NewStreamMetrics())
	assert.Nil(t, NewS3Metrics())
}

func TestInitRegistryIdempotent(t *testing.T) {
	InitRegistry()
	first := GetRegistry()
	require.NotNil(t, first)

	InitRegistry()
	assert.Same(t, first, GetRegistry())
	assert.True(t, IsEnabled())
}

func TestServerEndpoints(t *testing.T) {
	InitRegistry()

	srv := NewServer(ServerConfig{Address: ":0"}, func() any {
		return map[string]int{"open_streams": 3}
	})

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
