package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/weatherstation/internal/config"
	"github.com/genc-murat/weatherstation/internal/core/models"
	"github.com/genc-murat/weatherstation/internal/logger"
	"github.com/genc-murat/weatherstation/internal/sampler"
	"github.com/genc-murat/weatherstation/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data")
	cfg.Sampler.Interval = 10 * time.Millisecond
	cfg.Metrics.Port = 0
	return cfg
}

func steady(v float64) sampler.Source {
	return sampler.SourceFunc(func(context.Context) (map[string]float64, error) {
		return map[string]float64{"CelsiusTemperature": v}, nil
	})
}

func start(t *testing.T, a *App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("app exited before ready: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("app not ready")
	}
	return cancel, done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func query(t *testing.T, addr net.Addr, path string) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n\r\n", path)
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sampler.Interval = 0
	_, err := New(cfg, WithLogger(logger.Discard()))
	assert.ErrorContains(t, err, "sampler.interval")
}

func TestRunSamplesServesAndPersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true

	a, err := New(cfg, WithLogger(logger.Discard()), WithSource(steady(18.5)))
	require.NoError(t, err)
	cancel, done := start(t, a)

	require.Eventually(t, func() bool {
		return len(a.Store().Snapshot().HourBucket) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	var cur models.Sample
	require.NoError(t, json.Unmarshal(query(t, a.Addr(), "/"), &cur))
	v, ok := cur.Field("CelsiusTemperature")
	require.True(t, ok)
	assert.Equal(t, 18.5, v)

	var hour []models.Sample
	require.NoError(t, json.Unmarshal(query(t, a.Addr(), "/LastHour"), &hour))
	assert.NotEmpty(t, hour)

	resp, err := http.Get(fmt.Sprintf("http://%s%s", a.MetricsAddr(), cfg.Metrics.Path))
	require.NoError(t, err)
	metricsBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), "weatherstation_samples_added_total")

	stop(t, cancel, done)
	final := a.Store().Snapshot()

	fs, err := storage.NewFileStorage(cfg.Storage.Path, storage.WithLogger(logger.Discard()))
	require.NoError(t, err)
	defer fs.Close()
	persisted, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, final.Equal(persisted), "the last flush holds the final state")
}

func TestRunRestoresPersistedState(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sampler.Source = "none"

	ts := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	cur := models.NewSample(ts, map[string]float64{"Humidity": 61})
	fs, err := storage.NewFileStorage(cfg.Storage.Path, storage.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, fs.Flush(context.Background(), models.Snapshot{
		Current:       &cur,
		HourBucket:    []models.Sample{cur},
		HourlyHistory: []models.Sample{models.NewSample(ts.Truncate(time.Hour).Add(-time.Hour), map[string]float64{"Humidity": 58})},
	}))
	require.NoError(t, fs.Close())

	a, err := New(cfg, WithLogger(logger.Discard()))
	require.NoError(t, err)
	cancel, done := start(t, a)
	defer stop(t, cancel, done)

	var got models.Sample
	require.NoError(t, json.Unmarshal(query(t, a.Addr(), "/"), &got))
	assert.True(t, got.Equal(cur))

	var day []models.Sample
	require.NoError(t, json.Unmarshal(query(t, a.Addr(), "/LastDay"), &day))
	require.Len(t, day, 1)
	v, _ := day[0].Field("Humidity")
	assert.Equal(t, 58.0, v)

	assert.Nil(t, a.MetricsAddr(), "metrics disabled by default")
	assert.True(t, a.Store().HourMarker().Equal(ts))
}

func TestRunWithoutStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Enabled = false

	a, err := New(cfg, WithLogger(logger.Discard()), WithSource(steady(3)))
	require.NoError(t, err)
	cancel, done := start(t, a)

	require.Eventually(t, func() bool {
		return a.Store().Snapshot().Current != nil
	}, 2*time.Second, 5*time.Millisecond)
	stop(t, cancel, done)

	assert.NoDirExists(t, cfg.Storage.Path)
}

func TestRunFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	a, err := New(cfg, WithLogger(logger.Discard()), WithSource(steady(1)))
	require.NoError(t, err)
	err = a.Run(context.Background())
	assert.ErrorContains(t, err, "listen query server")

	select {
	case <-a.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready stays open after Run failed")
	}
}

func TestReadyClosedWhenMetricsListenFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = ln.Addr().(*net.TCPAddr).Port

	a, err := New(cfg, WithLogger(logger.Discard()), WithSource(steady(1)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Ready stays open after Run failed")
	}
	assert.ErrorContains(t, <-done, "listen metrics")
}
