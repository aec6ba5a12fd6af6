package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"svckit/config"
	"svckit/internal/metrics"
	"svckit/internal/models"
	"svckit/internal/queue"
	"svckit/internal/registry"
	"svckit/internal/sink"
	worker "svckit/processing"
	"svckit/tracectx"
)

// ErrClosed is returned by operations attempted after Close
var ErrClosed = errors.New("logger manager closed")

// Option customizes a Manager
type Option func(*options)

type options struct {
	source       registry.ConfigSource
	transport    sink.Transport
	diag         *log.Logger
	registerer   prometheus.Registerer
	console      io.Writer
	pollInterval time.Duration
	newTransport TransportFactory
}

// TransportFactory builds the transport for a remote sink. It returns a nil
// transport when the sink is incomplete.
type TransportFactory func(ctx context.Context, remote config.RemoteConfig, logger *log.Logger) (sink.Transport, error)

// WithConfigSource overrides the registry client built from cfg.Registry
func WithConfigSource(src registry.ConfigSource) Option {
	return func(o *options) { o.source = src }
}

// WithTransport ships through t instead of the transport selected by the sink
// endpoint. The sink still needs a topic id for shipping to be enabled.
func WithTransport(t sink.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithTransportFactory replaces endpoint-scheme transport selection, both at
// startup and on Reconfigure
func WithTransportFactory(f TransportFactory) Option {
	return func(o *options) { o.newTransport = f }
}

// WithDiagnostics sets the logger used for the pipeline's own diagnostics
func WithDiagnostics(l *log.Logger) Option {
	return func(o *options) { o.diag = l }
}

// WithRegisterer registers pipeline metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithConsole redirects console output (stderr by default)
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithPollInterval bounds how long an idle worker waits on the queue
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// Manager owns the logging pipeline: local outputs, the bounded queue, the
// shipping workers and the remote shipper. Build one per process with New and
// release it with Close.
type Manager struct {
	cfg     *config.LoggerConfig
	diag    *log.Logger
	metrics *metrics.Collector
	queue   *queue.BoundedQueue

	minLevel     models.Level
	consoleLevel models.Level
	fileLevel    models.Level
	remoteLevel  models.Level

	outMu   sync.Mutex
	console io.Writer
	file    *lumberjack.Logger

	// Workers hold a read lock for the duration of a send; Reconfigure takes
	// the write lock, so a swap waits for in-flight batches.
	shipMu       sync.RWMutex
	shipper      *sink.Shipper
	shipping     atomic.Bool
	newTransport TransportFactory

	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	loggers sync.Map // name -> *Logger
}

// New builds the pipeline and starts the shipping workers. A nil cfg means
// DefaultLoggerConfig. Sink problems (missing endpoint, unreachable registry,
// a transport that cannot be built) leave remote shipping disabled and are
// reported on the diagnostics logger; only an invalid cfg is an error.
func New(ctx context.Context, cfg *config.LoggerConfig, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultLoggerConfig()
	} else {
		cfg.SetDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.diag == nil {
		o.diag = log.New(os.Stderr, "[svckit] ", log.LstdFlags)
	}
	if o.newTransport == nil {
		o.newTransport = sink.NewTransport
	}

	m := &Manager{
		cfg:          cfg,
		diag:         o.diag,
		metrics:      metrics.New("", o.registerer),
		newTransport: o.newTransport,
	}
	m.consoleLevel, _ = models.ParseLevel(cfg.Console.Level)
	m.fileLevel, _ = models.ParseLevel(cfg.File.Level)
	m.remoteLevel, _ = models.ParseLevel(cfg.Remote.Level)
	m.minLevel = m.effectiveMinLevel()

	if cfg.Console.Enabled {
		m.console = o.console
		if m.console == nil {
			m.console = os.Stderr
		}
	}
	if cfg.File.Enabled {
		m.file = &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
	}

	m.shipper = m.buildShipper(ctx, o)
	m.shipping.Store(m.shipper.Enabled())

	remote := cfg.Remote
	m.queue = queue.New(remote.QueueCapacity, m.diag, m.metrics)
	pool := worker.New(worker.Config{
		WorkerCount:  remote.WorkerCount,
		BatchSize:    remote.BatchSize,
		BatchTimeout: remote.BatchTimeout(),
		PollInterval: o.pollInterval,
	}, m.queue, worker.SenderFunc(m.send), m.diag, m.metrics)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		pool.Run(runCtx)
	}()

	m.diag.Printf("Logger manager started, service: %s, remote shipping: %t", cfg.ServiceName, m.shipping.Load())
	return m, nil
}

func (m *Manager) buildShipper(ctx context.Context, o options) *sink.Shipper {
	remote := m.cfg.Remote
	if !remote.Enabled {
		return sink.NewDisabledShipper(m.diag)
	}

	src := o.source
	if src == nil && m.cfg.Registry.Enabled() && !remote.Sink.Complete() {
		nc, err := registry.NewNacosClient(m.cfg.Registry, m.diag)
		if err != nil {
			m.diag.Printf("Warning: registry client unavailable: %v", err)
		} else {
			// Sink config is read once, the SDK connection is not kept
			defer nc.Close()
			src = nc
		}
	}
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.Registry.Timeout)
	defer cancel()
	sinkCfg := registry.ResolveSinkConfig(fetchCtx, remote.Sink, src, m.cfg.Registry.ConfigKeys, m.diag)

	if o.transport != nil {
		return m.newShipper(o.transport, sinkCfg)
	}
	shipper, err := m.shipperFor(ctx, sinkCfg)
	if err != nil {
		m.diag.Printf("Warning: remote log shipping disabled: %v", err)
		return sink.NewDisabledShipper(m.diag)
	}
	return shipper
}

// shipperFor builds a transport for sinkCfg and wraps it in a shipper
func (m *Manager) shipperFor(ctx context.Context, sinkCfg config.SinkConfig) (*sink.Shipper, error) {
	remote := m.cfg.Remote
	remote.Sink = sinkCfg
	t, err := m.newTransport(ctx, remote, m.diag)
	if err != nil {
		return nil, err
	}
	if t == nil {
		m.diag.Printf("Warning: sink config incomplete (%s), remote log shipping disabled", sinkCfg)
		return sink.NewDisabledShipper(m.diag), nil
	}
	return m.newShipper(t, sinkCfg), nil
}

func (m *Manager) newShipper(t sink.Transport, sinkCfg config.SinkConfig) *sink.Shipper {
	service := sinkCfg.ServiceName
	if service == "" {
		service = m.cfg.ServiceName
	}
	return sink.NewShipper(t, sink.ShipperConfig{
		TopicID:     sinkCfg.TopicID,
		ServiceName: service,
		RetryTimes:  m.cfg.Remote.RetryTimes,
		RetryDelay:  m.cfg.Remote.RetryDelay(),
	}, m.diag, m.metrics)
}

// send is the workers' Sender. It resolves the current shipper per batch.
func (m *Manager) send(ctx context.Context, batch []*models.LogRecord) error {
	m.shipMu.RLock()
	defer m.shipMu.RUnlock()
	return m.shipper.Send(ctx, batch)
}

func (m *Manager) effectiveMinLevel() models.Level {
	lowest := models.LevelCritical + 1
	if m.cfg.Console.Enabled && m.consoleLevel < lowest {
		lowest = m.consoleLevel
	}
	if m.cfg.File.Enabled && m.fileLevel < lowest {
		lowest = m.fileLevel
	}
	if m.cfg.Remote.Enabled && m.remoteLevel < lowest {
		lowest = m.remoteLevel
	}
	return lowest
}

// Enabled reports whether a record at level would reach any output
func (m *Manager) Enabled(level models.Level) bool {
	return level.Enabled(m.minLevel) || (m.shipping.Load() && level.Enabled(m.remoteLevel))
}

// Shipping reports whether records are currently forwarded to a remote sink
func (m *Manager) Shipping() bool { return m.shipping.Load() }

// Log records one event. It never blocks on the network and never fails:
// local outputs are written synchronously, the remote copy is queued and may
// be dropped when the queue is full. The trace id is taken from ctx.
func (m *Manager) Log(ctx context.Context, level models.Level, loggerName, msg string, fields ...models.Field) {
	m.emit(ctx, level, loggerName, msg, "", fields)
}

func (m *Manager) emit(ctx context.Context, level models.Level, loggerName, msg, exception string, fields []models.Field) {
	if !m.Enabled(level) {
		return
	}
	var opts []models.RecordOption
	if exception != "" {
		opts = append(opts, models.WithException(exception))
	}
	rec := models.NewLogRecord(level, loggerName, msg, tracectx.TraceID(ctx), fields, opts...)
	m.Submit(rec)
}

// Submit routes an already built record to every output whose level admits it
func (m *Manager) Submit(rec *models.LogRecord) {
	if rec == nil {
		return
	}
	m.writeLocal(rec)
	if m.closed.Load() || !m.shipping.Load() || !rec.Level().Enabled(m.remoteLevel) {
		return
	}
	m.queue.Enqueue(rec)
}

func (m *Manager) writeLocal(rec *models.LogRecord) {
	toConsole := m.console != nil && rec.Level().Enabled(m.consoleLevel)
	toFile := m.cfg.File.Enabled && rec.Level().Enabled(m.fileLevel)
	if !toConsole && !toFile {
		return
	}
	line := FormatLine(rec)

	m.outMu.Lock()
	defer m.outMu.Unlock()
	// m.file is nil once closed; lumberjack would reopen it on write
	toFile = toFile && m.file != nil
	if toConsole {
		if _, err := io.WriteString(m.console, line); err != nil {
			m.diag.Printf("Warning: console log write failed: %v", err)
		}
	}
	if toFile {
		if _, err := io.WriteString(m.file, line); err != nil {
			m.diag.Printf("Warning: file log write failed: %v", err)
		}
	}
}

// Logger returns the named facade, creating it on first use
func (m *Manager) Logger(name string) *Logger {
	if l, ok := m.loggers.Load(name); ok {
		return l.(*Logger)
	}
	l, _ := m.loggers.LoadOrStore(name, &Logger{m: m, name: name})
	return l.(*Logger)
}

// Reconfigure points remote shipping at a new sink. The new transport is
// built first; the swap waits for batches currently being sent, then the old
// transport is closed. An incomplete sink disables shipping. Workers keep
// running throughout.
func (m *Manager) Reconfigure(ctx context.Context, sinkCfg config.SinkConfig) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if sinkCfg.ServiceName == "" {
		sinkCfg.ServiceName = m.cfg.Remote.Sink.ServiceName
	}
	next, err := m.shipperFor(ctx, sinkCfg)
	if err != nil {
		return fmt.Errorf("failed to reconfigure remote sink: %w", err)
	}

	m.shipMu.Lock()
	if m.closed.Load() {
		m.shipMu.Unlock()
		if err := next.Close(); err != nil {
			m.diag.Printf("Warning: failed to close unused log transport: %v", err)
		}
		return ErrClosed
	}
	prev := m.shipper
	m.shipper = next
	m.shipping.Store(next.Enabled())
	m.shipMu.Unlock()

	if err := prev.Close(); err != nil {
		m.diag.Printf("Warning: failed to close previous log transport: %v", err)
	}
	m.diag.Printf("Remote sink reconfigured: %s, shipping: %t", sinkCfg, next.Enabled())
	return nil
}

// Stats is a point-in-time view of the queue
type Stats struct {
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Dropped  uint64 `json:"dropped"`
	Shipping bool   `json:"shipping"`
}

// Stats reports queue depth and drop count
func (m *Manager) Stats() Stats {
	return Stats{
		Queued:   m.queue.Len(),
		Capacity: m.queue.Cap(),
		Dropped:  m.queue.Dropped(),
		Shipping: m.shipping.Load(),
	}
}

// Close stops accepting remote records, lets the workers drain the queue and
// flush, then closes the transport and file output. The wait is bounded by
// remote.shutdown_timeout_seconds. Calling Close more than once is safe.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		// Reconfigure re-checks closed under shipMu, and the shipper is only
		// closed under shipMu, so a racing swap is either closed here or discarded.
		m.closed.Store(true)
		m.cancel()

		timeout := m.cfg.Remote.ShutdownTimeout()
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-m.done:
			m.shipMu.Lock()
			m.closeShipper()
			m.shipMu.Unlock()
		case <-timer.C:
			m.diag.Printf("Warning: log shipping workers did not finish within %s, pending records may be lost", timeout)
			// A worker stuck in a send still holds the read lock; the
			// transport is closed once the workers finally exit.
			m.shipping.Store(false)
			go func() {
				<-m.done
				m.shipMu.Lock()
				m.closeShipper()
				m.shipMu.Unlock()
			}()
		}

		m.outMu.Lock()
		if m.file != nil {
			if err := m.file.Close(); err != nil {
				m.diag.Printf("Warning: failed to close log file: %v", err)
			}
			m.file = nil
		}
		m.outMu.Unlock()
	})
}

func (m *Manager) closeShipper() {
	if err := m.shipper.Close(); err != nil {
		m.diag.Printf("Warning: failed to close log transport: %v", err)
	}
	m.shipping.Store(false)
}
