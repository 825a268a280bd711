package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from models.Status
		to   models.Status
		want bool
	}{
		{"pending to processing", models.StatusPending, models.StatusProcessing, true},
		{"pending to completed", models.StatusPending, models.StatusCompleted, true},
		{"pending to failed", models.StatusPending, models.StatusFailed, true},
		{"pending to cancelled", models.StatusPending, models.StatusCancelled, true},
		{"processing to completed", models.StatusProcessing, models.StatusCompleted, true},
		{"processing to failed", models.StatusProcessing, models.StatusFailed, true},
		{"processing to cancelled", models.StatusProcessing, models.StatusCancelled, true},
		{"processing back to pending", models.StatusProcessing, models.StatusPending, false},
		{"completed to processing", models.StatusCompleted, models.StatusProcessing, false},
		{"completed to failed", models.StatusCompleted, models.StatusFailed, false},
		{"failed to completed", models.StatusFailed, models.StatusCompleted, false},
		{"cancelled to processing", models.StatusCancelled, models.StatusProcessing, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	t.Run("same status is a no-op", func(t *testing.T) {
		require.NoError(t, ValidateTransition(models.StatusProcessing, models.StatusProcessing))
		require.NoError(t, ValidateTransition(models.StatusFailed, models.StatusFailed))
	})

	t.Run("invalid target status", func(t *testing.T) {
		err := ValidateTransition(models.StatusPending, models.Status("bogus"))
		require.ErrorIs(t, err, models.ErrInvalidStatus)
	})

	t.Run("terminal states are frozen", func(t *testing.T) {
		err := ValidateTransition(models.StatusCompleted, models.StatusProcessing)
		require.ErrorIs(t, err, models.ErrTerminalStatus)
	})

	t.Run("backwards transition rejected", func(t *testing.T) {
		err := ValidateTransition(models.StatusProcessing, models.StatusPending)
		require.Error(t, err)
		require.NotErrorIs(t, err, models.ErrTerminalStatus)
	})
}
