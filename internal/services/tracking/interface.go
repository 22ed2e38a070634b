package tracking

import (
	"context"

	"sagra-pos/internal/models"
)

// HistoryLister reads the confirmed orders of the event.
type HistoryLister interface {
	ListHistory(ctx context.Context) ([]models.HistoryRecord, error)
}
