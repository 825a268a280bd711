package domain

import (
	"fmt"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

func CanTransition(from, to models.Status) bool {
	switch from {
	case models.StatusPending:
		return to == models.StatusProcessing || to.Terminal()
	case models.StatusProcessing:
		return to.Terminal()
	default:
		// Terminal states are frozen.
		return false
	}
}

// ValidateTransition accepts same-status updates (note refreshes, replayed
// deliveries) and otherwise enforces the pending -> processing -> terminal
// state machine.
func ValidateTransition(from, to models.Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, to)
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", models.ErrTerminalStatus, from, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	return nil
}
