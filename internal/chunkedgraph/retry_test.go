package chunkedgraph

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0.0,
	}
}

func TestIsTransient_NilError(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_ServerError(t *testing.T) {
	assert.True(t, IsTransient(&UpstreamServiceError{Status: 500}))
	assert.True(t, IsTransient(&UpstreamServiceError{Status: http.StatusTooManyRequests}))
}

func TestIsTransient_ClientError(t *testing.T) {
	assert.False(t, IsTransient(&UpstreamServiceError{Status: 404}))
}

func TestIsTransient_ContextErrors(t *testing.T) {
	assert.False(t, IsTransient(&UpstreamServiceError{Err: context.Canceled}))
	assert.False(t, IsTransient(context.DeadlineExceeded))
}

func TestIsTransient_OtherErrors(t *testing.T) {
	assert.False(t, IsTransient(errors.New("decode response: bad json")))
}

func TestRetryClient_Backoff(t *testing.T) {
	rc := NewRetryClient(nil, &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, rc.backoff(0))
	assert.Equal(t, 200*time.Millisecond, rc.backoff(1))
	assert.Equal(t, 400*time.Millisecond, rc.backoff(2))
}

func TestRetryClient_BackoffCapped(t *testing.T) {
	rc := NewRetryClient(nil, &RetryConfig{
		MaxRetries:     10,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
	}, nil)
	assert.Equal(t, 5*time.Second, rc.backoff(10))
}

func TestRetryClient_RecoversFromTransientFailures(t *testing.T) {
	mock := NewMockClient()
	mock.AddSegment(1, nil, [][2]models.NodeID{{1, 2}})
	mock.TransientFailures = 2

	rc := NewRetryClient(mock, fastRetry(3), nil)
	edges, err := rc.Level2Edges(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	assert.Equal(t, 3, mock.Calls("Level2Edges"))
}

func TestRetryClient_GivesUp(t *testing.T) {
	mock := NewMockClient()
	mock.TransientFailures = 10

	rc := NewRetryClient(mock, fastRetry(2), nil)
	_, err := rc.LatestRoot(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 3, mock.Calls("LatestRoot"))
}

func TestRetryClient_PermanentErrorNotRetried(t *testing.T) {
	mock := NewMockClient()

	rc := NewRetryClient(mock, fastRetry(3), nil)
	_, err := rc.Leaves(context.Background(), 404, Level2)
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls("Leaves"))
}

func TestRetryClient_ContextCancelled(t *testing.T) {
	mock := NewMockClient()
	mock.TransientFailures = 10
	rc := NewRetryClient(mock, &RetryConfig{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.ChangeLog(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Equal(t, 1, mock.Calls("ChangeLog"))
}

func TestRetryClient_BackoffJitterBounded(t *testing.T) {
	rc := NewRetryClient(nil, &RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFraction: 0.5,
	}, nil)
	for range 20 {
		d := rc.backoff(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestRetryClient_LogsRetries(t *testing.T) {
	mock := NewMockClient()
	mock.AddSegment(1, nil, [][2]models.NodeID{{1, 2}})
	mock.TransientFailures = 2

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rc := NewRetryClient(mock, fastRetry(3), logger)

	_, err := rc.Level2Edges(context.Background(), 1)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "retrying segmentation service request")
	assert.Contains(t, lines[0], `operation="level2 graph"`)
	assert.Contains(t, lines[0], "attempt=1")
	assert.Contains(t, lines[1], "attempt=2")
	assert.Contains(t, lines[1], "delay=2ms")
}
