package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKeepsChangeOnSuccess(t *testing.T) {
	state := "old"
	err := Run(context.Background(), Tx{
		Apply:   func() { state = "new" },
		Inverse: func() { state = "old" },
	}, func(ctx context.Context) error {
		assert.Equal(t, "new", state)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", state)
}

func TestRunRevertsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	state := "old"
	err := Run(context.Background(), Tx{
		Apply:   func() { state = "new" },
		Inverse: func() { state = "old" },
	}, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "old", state)
}
