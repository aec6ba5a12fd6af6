package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svckit/config"
	"svckit/internal/models"
	"svckit/internal/sink"
	"svckit/tracectx"
)

// syncBuffer guards console output written by the manager while tests read it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.LoggerConfig {
	cfg := config.DefaultLoggerConfig()
	cfg.ServiceName = "orders"
	cfg.Remote.Enabled = true
	cfg.Remote.BatchSize = 2
	cfg.Remote.WorkerCount = 1
	cfg.Remote.BatchTimeoutSeconds = 0.05
	cfg.Remote.RetryDelaySeconds = 0.001
	cfg.Remote.Sink = config.SinkConfig{Endpoint: "mock://local", TopicID: "topic-1"}
	return cfg
}

func newTestManager(t *testing.T, cfg *config.LoggerConfig, opts ...Option) (*Manager, *syncBuffer) {
	t.Helper()
	console := &syncBuffer{}
	base := []Option{
		WithConsole(console),
		WithDiagnostics(log.New(io.Discard, "", 0)),
		WithPollInterval(10 * time.Millisecond),
	}
	m, err := New(context.Background(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, console
}

func TestManagerShipsRecordsEndToEnd(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, console := newTestManager(t, testConfig(), WithTransport(mock))
	require.True(t, m.Shipping())

	ctx := tracectx.WithTraceID(context.Background(), "trace-42")
	l := m.Logger("checkout")
	l.Info(ctx, "order placed", models.F("order_id", 1001))
	l.Warning(ctx, "stock low", models.F("sku", "A-1"))
	l.Error(context.Background(), "payment failed")

	m.Close()

	entries := mock.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "order placed", entries[0].Contents[sink.KeyMessage])
	assert.Equal(t, "trace-42", entries[0].Contents[sink.KeyTraceID])
	assert.Equal(t, "1001", entries[0].Contents["order_id"])
	assert.Equal(t, "checkout", entries[0].Contents[sink.KeyLogger])
	assert.Equal(t, "orders", entries[0].Contents[sink.KeyServiceName])
	assert.Equal(t, "unknown", entries[2].Contents[sink.KeyTraceID])
	assert.Equal(t, []string{"topic-1"}, mock.Topics()[:1])
	assert.True(t, mock.Closed())

	out := console.String()
	assert.Contains(t, out, " - checkout - INFO - [trace-42] - order placed order_id=1001")
	assert.Contains(t, out, " - checkout - ERROR - [unknown] - payment failed")
}

func TestManagerRemoteLevelFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.Level = "WARNING"
	mock := sink.NewMockTransport(nil)
	m, console := newTestManager(t, cfg, WithTransport(mock))

	l := m.Logger("svc")
	l.Debug(context.Background(), "debug noise")
	l.Info(context.Background(), "info line")
	l.Critical(context.Background(), "on fire")
	m.Close()

	entries := mock.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "CRITICAL", entries[0].Contents[sink.KeyLevel])
	assert.Contains(t, console.String(), "info line")
	assert.NotContains(t, console.String(), "debug noise")
}

func TestManagerWithoutSinkDisablesShipping(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.Sink = config.SinkConfig{}
	m, console := newTestManager(t, cfg)

	assert.False(t, m.Shipping())
	m.Logger("svc").Info(context.Background(), "local only")
	assert.Zero(t, m.Stats().Queued)
	assert.Contains(t, console.String(), "local only")
}

// blockingTransport holds every send until released
type blockingTransport struct {
	release chan struct{}
	once    sync.Once
	closed  atomic.Bool
}

func (b *blockingTransport) PutLogs(ctx context.Context, _ string, _ []sink.Entry) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingTransport) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *blockingTransport) unblock() { b.once.Do(func() { close(b.release) }) }

func TestLogNeverBlocksWhenQueueIsFull(t *testing.T) {
	cfg := testConfig()
	cfg.Console.Enabled = false
	cfg.Remote.QueueCapacity = 5
	cfg.Remote.BatchSize = 5
	cfg.Remote.WorkerCount = 1
	cfg.Remote.ShutdownTimeoutSeconds = 0.1
	bt := &blockingTransport{release: make(chan struct{})}
	defer bt.unblock()
	m, _ := newTestManager(t, cfg, WithTransport(bt))

	l := m.Logger("hot-path")
	start := time.Now()
	for i := 0; i < 1000; i++ {
		l.Info(context.Background(), "spin", models.F("i", i))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, m.Stats().Dropped, uint64(0))
	assert.LessOrEqual(t, m.Stats().Queued, 5)

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not honour the shutdown timeout")
	}
}

func TestCloseIsIdempotentAndStopsShipping(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock))

	m.Logger("svc").Info(context.Background(), "before close")
	m.Close()
	m.Close()

	m.Logger("svc").Info(context.Background(), "after close")
	assert.Len(t, mock.Entries(), 1)
	assert.False(t, m.Shipping())
	assert.ErrorIs(t, m.Reconfigure(context.Background(), config.SinkConfig{Endpoint: "mock://x", TopicID: "t"}), ErrClosed)
}

// transportsByEndpoint hands out a fresh mock per endpoint and remembers it
type transportsByEndpoint struct {
	mu    sync.Mutex
	built map[string]*sink.MockTransport
}

func (f *transportsByEndpoint) factory(_ context.Context, remote config.RemoteConfig, _ *log.Logger) (sink.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.built == nil {
		f.built = map[string]*sink.MockTransport{}
	}
	mt := sink.NewMockTransport(nil)
	f.built[remote.Sink.Endpoint] = mt
	return mt, nil
}

func (f *transportsByEndpoint) get(endpoint string) *sink.MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[endpoint]
}

func TestReconfigureSwapsTransport(t *testing.T) {
	first := sink.NewMockTransport(nil)
	factory := &transportsByEndpoint{}
	m, _ := newTestManager(t, testConfig(), WithTransport(first), WithTransportFactory(factory.factory))

	m.Logger("svc").Info(context.Background(), "to first")
	require.Eventually(t, func() bool { return len(first.Entries()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Reconfigure(context.Background(), config.SinkConfig{Endpoint: "mock://second", TopicID: "topic-2"}))
	assert.True(t, first.Closed())
	assert.True(t, m.Shipping())
	second := factory.get("mock://second")
	require.NotNil(t, second)

	m.Logger("svc").Info(context.Background(), "to second")
	m.Close()

	assert.Len(t, first.Entries(), 1)
	entries := second.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "to second", entries[0].Contents[sink.KeyMessage])
	assert.Equal(t, []string{"topic-2"}, second.Topics())
	assert.True(t, second.Closed())
}

func TestReconfigureRacingCloseDiscardsNewTransport(t *testing.T) {
	building := make(chan struct{})
	proceed := make(chan struct{})
	next := sink.NewMockTransport(nil)
	slowFactory := func(context.Context, config.RemoteConfig, *log.Logger) (sink.Transport, error) {
		close(building)
		<-proceed
		return next, nil
	}
	first := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(first), WithTransportFactory(slowFactory))

	errc := make(chan error, 1)
	go func() {
		errc <- m.Reconfigure(context.Background(), config.SinkConfig{Endpoint: "mock://next", TopicID: "t"})
	}()
	<-building
	m.Close()
	close(proceed)

	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.True(t, first.Closed())
	assert.True(t, next.Closed())
	assert.False(t, m.Shipping())
}

func TestCloseTimeoutClosesTransportOnceWorkersExit(t *testing.T) {
	cfg := testConfig()
	cfg.Console.Enabled = false
	cfg.Remote.BatchSize = 1
	cfg.Remote.ShutdownTimeoutSeconds = 0.05
	bt := &blockingTransport{release: make(chan struct{})}
	defer bt.unblock()
	m, _ := newTestManager(t, cfg, WithTransport(bt))

	m.Logger("svc").Info(context.Background(), "stuck")
	require.Eventually(t, func() bool { return m.Stats().Queued == 0 }, 2*time.Second, 5*time.Millisecond)

	m.Close()
	assert.False(t, m.Shipping())
	assert.False(t, bt.closed.Load())

	bt.unblock()
	assert.Eventually(t, bt.closed.Load, 2*time.Second, 5*time.Millisecond)
}

func TestCloseStopsFileOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Console.Enabled = false
	cfg.File = config.FileConfig{Enabled: true, Level: "INFO", Filename: filepath.Join(t.TempDir(), "app.log")}
	m, _ := newTestManager(t, cfg, WithTransport(sink.NewMockTransport(nil)))

	m.Logger("svc").Info(context.Background(), "before close")
	m.Close()
	data, err := os.ReadFile(cfg.File.Filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before close")

	require.NoError(t, os.Remove(cfg.File.Filename))
	m.Logger("svc").Info(context.Background(), "after close")
	_, err = os.Stat(cfg.File.Filename)
	assert.True(t, os.IsNotExist(err))
}

func TestReconfigureToIncompleteSinkDisables(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock))

	require.NoError(t, m.Reconfigure(context.Background(), config.SinkConfig{}))
	assert.False(t, m.Shipping())
	assert.True(t, mock.Closed())
}

func TestReconfigureRejectsBadEndpoint(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock))

	err := m.Reconfigure(context.Background(), config.SinkConfig{Endpoint: "ftp://nowhere", TopicID: "t"})
	assert.Error(t, err)
	assert.True(t, m.Shipping())
	assert.False(t, mock.Closed())
}

type fakeSource struct{ docs map[string]string }

func (f fakeSource) FetchConfig(_ context.Context, key string) (string, bool, error) {
	doc, ok := f.docs[key]
	return doc, ok, nil
}

func TestManagerLoadsSinkFromRegistry(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.Sink = config.SinkConfig{}
	src := fakeSource{docs: map[string]string{
		"tls.log.config": `{"VOLCENGINE_ENDPOINT":"mock://registry","VOLCENGINE_TOPIC_ID":"topic-r"}`,
	}}
	m, _ := newTestManager(t, cfg, WithConfigSource(src))
	assert.True(t, m.Shipping())
}

func TestManagerRetriesFailedBatches(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.BatchSize = 1
	mock := sink.NewMockTransport(nil)
	mock.FailNext(2, errors.New("flaky"))
	m, _ := newTestManager(t, cfg, WithTransport(mock))

	m.Logger("svc").Info(context.Background(), "eventually delivered")
	m.Close()

	assert.Equal(t, 3, mock.Calls())
	assert.Len(t, mock.Entries(), 1)
}

func TestExceptionAttachesErrorText(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock))

	m.Logger("svc").Exception(context.Background(), "charge failed", errors.New("card declined"))
	m.Close()

	entries := mock.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0].Contents[sink.KeyLevel])
	assert.True(t, strings.HasPrefix(entries[0].Contents[sink.KeyException], "card declined"))
}

func TestLoggerWithBindsFields(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock))

	l := m.Logger("svc").With(models.F("tenant", "acme"))
	l.Info(context.Background(), "scoped", models.F("step", 2))
	m.Close()

	entries := mock.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "acme", entries[0].Contents["tenant"])
	assert.Equal(t, "2", entries[0].Contents["step"])
	assert.Same(t, m.Logger("svc"), m.Logger("svc"))
}

func TestSlogHandler(t *testing.T) {
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock))

	sl := slog.New(m.SlogHandler("api")).With("region", "eu")
	ctx := tracectx.WithTraceID(context.Background(), "slog-trace")
	sl.InfoContext(ctx, "hello", "user", "u1", slog.Group("req", "id", 7))
	sl.DebugContext(ctx, "filtered")
	m.Close()

	entries := mock.Entries()
	require.Len(t, entries, 1)
	c := entries[0].Contents
	assert.Equal(t, "api", c[sink.KeyLogger])
	assert.Equal(t, "hello", c[sink.KeyMessage])
	assert.Equal(t, "slog-trace", c[sink.KeyTraceID])
	assert.Equal(t, "eu", c["region"])
	assert.Equal(t, "u1", c["user"])
	assert.Equal(t, "7", c["req.id"])
}

func TestLevelFromSlog(t *testing.T) {
	assert.Equal(t, models.LevelDebug, LevelFromSlog(slog.LevelDebug))
	assert.Equal(t, models.LevelInfo, LevelFromSlog(slog.LevelInfo))
	assert.Equal(t, models.LevelWarning, LevelFromSlog(slog.LevelWarn))
	assert.Equal(t, models.LevelError, LevelFromSlog(slog.LevelError))
	assert.Equal(t, models.LevelCritical, LevelFromSlog(slog.LevelError+4))
}

func TestManagerRegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mock := sink.NewMockTransport(nil)
	m, _ := newTestManager(t, testConfig(), WithTransport(mock), WithRegisterer(reg))
	m.Logger("svc").Info(context.Background(), "counted")
	m.Close()

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "svckit_logship_records_shipped_total" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.Level = "LOUD"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestFormatLine(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.Local)
	rec := models.NewLogRecord(models.LevelWarning, "orders", "slow", "abc", []models.Field{models.F("ms", 900)},
		models.WithTime(at))
	assert.Equal(t, "2024-05-01 12:00:00,123 - orders - WARNING - [abc] - slow ms=900\n", FormatLine(rec))
}
