package sink

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svckit/internal/metrics"
	"svckit/internal/models"
)

func testRecords(n int) []*models.LogRecord {
	out := make([]*models.LogRecord, n)
	for i := range out {
		out[i] = models.NewLogRecord(models.LevelInfo, "orders", "placed", "t-1",
			[]models.Field{models.F("seq", i)})
	}
	return out
}

type retryLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *retryLog) record(_ int, _ error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func TestShipperSendsBatch(t *testing.T) {
	mock := NewMockTransport(nil)
	m := metrics.Discard()
	s := NewShipper(mock, ShipperConfig{TopicID: "topic-1", ServiceName: "orders-svc"}, nil, m)
	require.True(t, s.Enabled())

	require.NoError(t, s.Send(context.Background(), testRecords(3)))

	require.Len(t, mock.Batches(), 1)
	assert.Equal(t, []string{"topic-1"}, mock.Topics())
	entries := mock.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "orders-svc", entries[0].Contents[KeyServiceName])
	assert.Equal(t, "2", entries[2].Contents["seq"])
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RecordsShipped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SendAttempts.WithLabelValues("ok")))
}

func TestShipperRetriesWithExponentialDelay(t *testing.T) {
	mock := NewMockTransport(nil)
	mock.FailNext(2, nil)
	rl := &retryLog{}
	s := NewShipper(mock, ShipperConfig{
		TopicID:    "topic-1",
		RetryTimes: 3,
		RetryDelay: 2 * time.Millisecond,
		OnRetry:    rl.record,
	}, nil, nil)

	require.NoError(t, s.Send(context.Background(), testRecords(1)))

	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, rl.delays)
	assert.Len(t, mock.Entries(), 1)
}

func TestShipperGivesUpAfterRetryTimes(t *testing.T) {
	mock := NewMockTransport(nil)
	boom := errors.New("backend down")
	mock.FailNext(10, boom)
	m := metrics.Discard()
	var diag bytes.Buffer
	rl := &retryLog{}
	s := NewShipper(mock, ShipperConfig{
		TopicID:    "topic-1",
		RetryTimes: 3,
		RetryDelay: time.Millisecond,
		OnRetry:    rl.record,
	}, log.New(&diag, "", 0), m)

	err := s.Send(context.Background(), testRecords(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 3, mock.Calls(), "exactly retryTimes attempts")
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, rl.delays)
	assert.Empty(t, mock.Batches())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesFailed))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SendAttempts.WithLabelValues("error")))
	assert.Contains(t, diag.String(), "dropping 2 log records")
}

func TestShipperSingleAttempt(t *testing.T) {
	mock := NewMockTransport(nil)
	mock.FailNext(1, nil)
	s := NewShipper(mock, ShipperConfig{TopicID: "t", RetryTimes: 1, RetryDelay: time.Millisecond}, nil, nil)

	assert.Error(t, s.Send(context.Background(), testRecords(1)))
	assert.Equal(t, 1, mock.Calls())
}

func TestShipperStopsRetryingOnCancel(t *testing.T) {
	mock := NewMockTransport(nil)
	mock.FailNext(10, nil)
	s := NewShipper(mock, ShipperConfig{TopicID: "t", RetryTimes: 5, RetryDelay: time.Hour}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	assert.Error(t, s.Send(ctx, testRecords(1)))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, mock.Calls())
}

func TestDisabledShipperIsNoop(t *testing.T) {
	s := NewDisabledShipper(nil)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Send(context.Background(), testRecords(5)))
	assert.NoError(t, s.Close())

	// A transport without a topic cannot ship anywhere either
	mock := NewMockTransport(nil)
	s = NewShipper(mock, ShipperConfig{}, nil, nil)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Send(context.Background(), testRecords(1)))
	assert.Zero(t, mock.Calls())
}

func TestShipperEmptyBatchMakesNoCall(t *testing.T) {
	mock := NewMockTransport(nil)
	s := NewShipper(mock, ShipperConfig{TopicID: "t"}, nil, nil)
	assert.NoError(t, s.Send(context.Background(), nil))
	assert.Zero(t, mock.Calls())
}

func TestShipperSkipsUnserializableRecords(t *testing.T) {
	mock := NewMockTransport(nil)
	m := metrics.Discard()
	s := NewShipper(mock, ShipperConfig{TopicID: "t"}, nil, m)

	batch := testRecords(2)
	bad := models.NewLogRecord(models.LevelError, "orders", "bad", "", []models.Field{models.F("ch", make(chan int))})
	batch = append(batch, bad)

	require.NoError(t, s.Send(context.Background(), batch))
	assert.Len(t, mock.Entries(), 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsSkipped))
}

type lookupError struct{ key string }

func (e *lookupError) Error() string { return "lookup " + e.key }

type brokenJSON struct{}

func (brokenJSON) MarshalJSON() ([]byte, error) { panic("encoder exploded") }

func TestShipperSkipsRecordsWhoseValuesPanic(t *testing.T) {
	mock := NewMockTransport(nil)
	m := metrics.Discard()
	s := NewShipper(mock, ShipperConfig{TopicID: "t"}, nil, m)

	var nilErr *lookupError
	batch := testRecords(2)
	batch = append(batch,
		models.NewLogRecord(models.LevelError, "orders", "typed nil", "", []models.Field{models.F("err", error(nilErr))}),
		models.NewLogRecord(models.LevelError, "orders", "bad json", "", []models.Field{models.F("payload", brokenJSON{})}),
	)

	require.NotPanics(t, func() {
		require.NoError(t, s.Send(context.Background(), batch))
	})
	assert.Len(t, mock.Entries(), 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsSkipped))
}

func TestShipperCloseClosesTransport(t *testing.T) {
	mock := NewMockTransport(nil)
	s := NewShipper(mock, ShipperConfig{TopicID: "t"}, nil, nil)
	require.NoError(t, s.Close())
	assert.True(t, mock.Closed())
}
