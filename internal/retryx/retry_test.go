package retryx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestDo_RetriesConnectionFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", common.ErrConnectionFailure)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return fmt.Errorf("dial: %w", common.ErrConnectionFailure)
	})
	require.ErrorIs(t, err, common.ErrConnectionFailure)
	assert.Equal(t, 4, calls, "one attempt plus three retries")
}

func TestDo_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return common.ErrDuplicateKey
	})
	require.ErrorIs(t, err, common.ErrDuplicateKey)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return common.ErrConnectionFailure
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := Policy{MaxRetries: 10, BaseDelay: time.Hour}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, slow, func(context.Context) error {
		calls++
		return common.ErrConnectionFailure
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fast, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, common.ErrConnectionFailure
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = DoValue(context.Background(), fast, func(context.Context) (int, error) {
		return 0, errors.New("fatal")
	})
	require.EqualError(t, err, "fatal")
}
