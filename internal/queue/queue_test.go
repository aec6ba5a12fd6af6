package queue

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svckit/internal/metrics"
	"svckit/internal/models"
)

func record(msg string) *models.LogRecord {
	return models.NewLogRecord(models.LevelInfo, "test", msg, "", nil)
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(8, nil, nil)
	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(record(fmt.Sprintf("m%d", i))))
	}
	assert.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec, ok := q.Dequeue(ctx)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("m%d", i), rec.Message())
	}
}

func TestDequeueTimesOut(t *testing.T) {
	q := New(1, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	rec, ok := q.Dequeue(ctx)
	assert.False(t, ok)
	assert.Nil(t, rec)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.Discard()
	q := New(3, log.New(&buf, "", 0), m)

	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(record("fill")))
	}

	done := make(chan bool, 1)
	go func() { done <- q.Enqueue(record("overflow")) }()

	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Cap())
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsDropped))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RecordsEnqueued))
}

func TestDropWarningIsRateLimited(t *testing.T) {
	var buf bytes.Buffer
	q := New(1, log.New(&buf, "", 0), nil)
	q.Enqueue(record("fill"))

	for i := 0; i < 50; i++ {
		q.Enqueue(record("overflow"))
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "queue full"))
	assert.Equal(t, uint64(50), q.Dropped())
}

func TestTryDequeue(t *testing.T) {
	q := New(0, nil, nil)
	assert.Equal(t, DefaultCapacity, q.Cap())

	_, ok := q.TryDequeue()
	assert.False(t, ok)

	q.Enqueue(record("x"))
	rec, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "x", rec.Message())
}

func TestEnqueueNilIsIgnored(t *testing.T) {
	q := New(2, nil, nil)
	assert.False(t, q.Enqueue(nil))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(0), q.Dropped())
}
