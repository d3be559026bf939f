package businessflow

import (
	"math/rand"

	"github.com/zapsender/zapsender-backend/models"
)

// pickByStrategy selects one element for the recipient at the given index.
// A single-element collection short-circuits regardless of strategy.
func pickByStrategy[T any](items []T, strategy models.RotationStrategy, index int) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, ErrNoSelection
	}
	if len(items) == 1 {
		return items[0], nil
	}

	switch strategy {
	case models.RotationSequential:
		return items[index%len(items)], nil
	case models.RotationRandom:
		return items[rand.Intn(len(items))], nil
	case models.RotationIntelligent:
		// Reserved strategy. Load-aware selection is not implemented yet,
		// so it behaves like sequential until it is.
		return items[index%len(items)], nil
	default:
		return items[index%len(items)], nil
	}
}

// PickSession selects the sending session for the recipient at index
func PickSession(sessions []*models.WhatsAppSession, strategy models.RotationStrategy, index int) (*models.WhatsAppSession, error) {
	return pickByStrategy(sessions, strategy, index)
}

// PickTemplate selects the message template for the recipient at index
func PickTemplate(templates []*models.MessageTemplate, strategy models.RotationStrategy, index int) (*models.MessageTemplate, error) {
	return pickByStrategy(templates, strategy, index)
}
