package statuses

import (
	"context"

	"github.com/dmitrijs2005/depmsg/internal/models"
)

type Repository interface {
	// Upsert inserts the status row or overwrites the flags of an existing one.
	Upsert(ctx context.Context, s *models.MessageStatus) error
	Get(ctx context.Context, messageID string) (*models.MessageStatus, error)
	ListByDeposition(ctx context.Context, depositionID string) ([]models.MessageStatus, error)
	Count(ctx context.Context, depositionID string) (int, error)
}
