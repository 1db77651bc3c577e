package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBudget(t *testing.T) {
	t.Parallel()

	b := NewRetryBudget(2)
	assert.Equal(t, 2, b.Remaining())
	assert.True(t, b.Spend())
	assert.True(t, b.Spend())
	assert.False(t, b.Spend())
	assert.Equal(t, 0, b.Remaining())
	assert.Equal(t, 2, b.Used())
}

func TestRetryBudgetNil(t *testing.T) {
	t.Parallel()

	var b *RetryBudget
	assert.False(t, b.Spend())
	assert.Equal(t, 0, b.Remaining())
	assert.False(t, NewRetryBudget(-3).Spend())
}

func TestSleepHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
