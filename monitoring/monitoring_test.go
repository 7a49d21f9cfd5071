package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeldash/results"
)

func TestMetricsRecordLoads(t *testing.T) {
	m := NewMetrics()

	m.CacheMiss("dir")
	m.LoadCompleted("dir", 20*time.Millisecond, 3, 1, nil)
	m.CacheHit("dir")
	m.LoadCompleted("dir", 0, 0, 0, fmt.Errorf("%w: dir", results.ErrMissingDirectory))
	m.LoadCompleted("dir", 0, 0, 0, errors.New("permission denied"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("missing_directory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedFiles))
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.UploadProcessed(UploadEmpty)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `modeldash_dataset_uploads_total{outcome="empty"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit("d")
		m.CacheMiss("d")
		m.LoadCompleted("d", time.Second, 1, 1, nil)
		m.UploadProcessed(UploadOK)
		m.setClients(2)
		m.messageSent(Heartbeat)
	})
}

func TestHubBroadcastsResultsChanged(t *testing.T) {
	metrics := NewMetrics()
	hub := NewHub(metrics, nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyResultsChanged("pickle_files")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, ResultsChanged, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var payload ResultsChangedData
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "pickle_files", payload.Dir)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.wsClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.wsMessagesSent.WithLabelValues(string(ResultsChanged))))
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSendsHeartbeat(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.heartbeat = 20 * time.Millisecond
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, Heartbeat, msg.Type)
}
