package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"svckit/internal/metrics"
	"svckit/internal/models"
)

const (
	DefaultRetryTimes = 3
	DefaultRetryDelay = time.Second
)

// RetryNotifier observes a failed attempt before the shipper sleeps for delay
type RetryNotifier func(attempt int, err error, delay time.Duration)

// ShipperConfig holds the shipper's delivery policy
type ShipperConfig struct {
	TopicID     string
	ServiceName string
	RetryTimes  int           // Max attempts per batch, including the first
	RetryDelay  time.Duration // Delay before the first retry, doubled for each one after
	OnRetry     RetryNotifier // Optional hook, mostly for tests and metrics
}

// Shipper serializes batches and delivers them through a Transport with
// bounded exponential-backoff retries. A Shipper without a transport is
// disabled and discards everything it is given.
type Shipper struct {
	transport Transport
	cfg       ShipperConfig
	logger    *log.Logger
	metrics   *metrics.Collector
}

// NewShipper creates a shipper. A nil transport or an empty topic yields a
// disabled shipper.
func NewShipper(transport Transport, cfg ShipperConfig, logger *log.Logger, m *metrics.Collector) *Shipper {
	if cfg.RetryTimes <= 0 {
		cfg.RetryTimes = DefaultRetryTimes
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if m == nil {
		m = metrics.Discard()
	}
	if cfg.TopicID == "" {
		transport = nil
	}
	return &Shipper{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// NewDisabledShipper returns a shipper that silently drops every batch
func NewDisabledShipper(logger *log.Logger) *Shipper {
	return NewShipper(nil, ShipperConfig{}, logger, nil)
}

// Enabled reports whether batches are actually sent anywhere
func (s *Shipper) Enabled() bool {
	return s != nil && s.transport != nil
}

// Topic is the destination topic id
func (s *Shipper) Topic() string { return s.cfg.TopicID }

// Send delivers batch, retrying up to RetryTimes attempts. After the last
// failure the batch is dropped, an error is logged locally and returned to
// the worker. Sending on a disabled shipper or an empty batch is a no-op.
func (s *Shipper) Send(ctx context.Context, batch []*models.LogRecord) error {
	if !s.Enabled() || len(batch) == 0 {
		return nil
	}

	entries, skipped, serErr := BuildEntries(batch, s.cfg.ServiceName)
	if skipped > 0 {
		s.metrics.RecordsSkipped.Add(float64(skipped))
		s.printf("Warning: skipped %d unserializable log records in batch of %d: %v", skipped, len(batch), serErr)
	}
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	attempt := 0
	operation := func() error {
		attempt++
		err := s.transport.PutLogs(ctx, s.cfg.TopicID, entries)
		if err != nil {
			s.metrics.SendAttempts.WithLabelValues("error").Inc()
			return err
		}
		s.metrics.SendAttempts.WithLabelValues("ok").Inc()
		return nil
	}
	notify := func(err error, delay time.Duration) {
		s.printf("Warning: log batch send failed (attempt %d/%d), retrying in %s: %v",
			attempt, s.cfg.RetryTimes, delay, err)
		if s.cfg.OnRetry != nil {
			s.cfg.OnRetry(attempt, err, delay)
		}
	}

	err := backoff.RetryNotify(operation, s.retryPolicy(ctx), notify)
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.BatchesFailed.Inc()
		s.printf("Error: dropping %d log records after %d failed send attempts: %v", len(entries), attempt, err)
		return fmt.Errorf("send batch of %d records to topic %s: %w", len(entries), s.cfg.TopicID, err)
	}

	s.metrics.RecordsShipped.Add(float64(len(entries)))
	return nil
}

// retryPolicy waits RetryDelay*2^n before retry n and gives up after
// RetryTimes attempts in total.
func (s *Shipper) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = s.cfg.RetryDelay << uint(s.cfg.RetryTimes)
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.RetryTimes-1)), ctx)
}

// Close releases the underlying transport
func (s *Shipper) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.transport.Close()
}

func (s *Shipper) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
