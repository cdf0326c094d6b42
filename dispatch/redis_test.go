package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	queue, err := NewRedisQueue(NewConfig(
		WithAddr(mr.Addr()),
		WithKeepResult(time.Hour),
	))
	require.NoError(t, err)

	t.Cleanup(func() {
		queue.Close()
		mr.Close()
	})
	return mr, queue
}

func TestNewRedisQueue_BadAddress(t *testing.T) {
	_, err := NewRedisQueue(NewConfig(WithAddr("localhost:0")))
	assert.Error(t, err)
}

func TestNewRedisQueue_InvalidConfig(t *testing.T) {
	t.Run("missing addr", func(t *testing.T) {
		_, err := NewRedisQueue(&Config{KeepResult: time.Hour})
		assert.Error(t, err)
	})

	t.Run("zero retention", func(t *testing.T) {
		_, err := NewRedisQueue(&Config{Addr: "localhost:6379"})
		assert.Error(t, err)
	})
}

func TestEnqueueDequeue(t *testing.T) {
	_, queue := setupTestQueue(t)
	ctx := context.Background()

	jobID, err := queue.Enqueue(ctx, "enrich", "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	status, err := queue.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)

	job, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "enrich", job.Stage)
	assert.Equal(t, "session-1", job.SessionID)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestDequeue_FIFO(t *testing.T) {
	_, queue := setupTestQueue(t)
	ctx := context.Background()

	first, err := queue.Enqueue(ctx, "enrich", "session-1")
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, "classify", "session-1")
	require.NoError(t, err)

	job, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, job.ID)

	job, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, job.ID)
}

func TestJobLifecycle(t *testing.T) {
	_, queue := setupTestQueue(t)
	ctx := context.Background()

	jobID, err := queue.Enqueue(ctx, "retrieve", "session-1")
	require.NoError(t, err)

	_, err = queue.Result(ctx, jobID)
	assert.ErrorIs(t, err, ErrJobNotFinished)

	require.NoError(t, queue.MarkRunning(ctx, jobID))
	status, err := queue.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
	assert.False(t, status.Terminal())

	require.NoError(t, queue.MarkComplete(ctx, jobID, []byte(`{"early_exit":true}`)))
	status, err = queue.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, status)
	assert.True(t, status.Terminal())

	payload, err := queue.Result(ctx, jobID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"early_exit":true}`, string(payload))
}

func TestMarkFailed(t *testing.T) {
	_, queue := setupTestQueue(t)
	ctx := context.Background()

	jobID, err := queue.Enqueue(ctx, "insights", "session-1")
	require.NoError(t, err)
	require.NoError(t, queue.MarkFailed(ctx, jobID, errors.New("model endpoint unreachable")))

	status, err := queue.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	_, err = queue.Result(ctx, jobID)
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "model endpoint unreachable")
}

func TestStatus_UnknownJob(t *testing.T) {
	_, queue := setupTestQueue(t)

	_, err := queue.Status(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDequeue_ExpiredRecordIsDropped(t *testing.T) {
	mr, queue := setupTestQueue(t)
	ctx := context.Background()

	jobID, err := queue.Enqueue(ctx, "enrich", "session-1")
	require.NoError(t, err)

	// Expire the job record while its id still sits in the pending list.
	mr.Del(queue.jobKey(jobID))

	job, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeue_EmptyQueueTimesOut(t *testing.T) {
	_, queue := setupTestQueue(t)

	job, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}
