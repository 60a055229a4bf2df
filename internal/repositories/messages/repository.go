package messages

import (
	"context"

	"github.com/dmitrijs2005/depmsg/internal/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.Message) error
	Exists(ctx context.Context, messageID string) (bool, error)
	DepositionOf(ctx context.Context, messageID string) (string, error)
	ListByDeposition(ctx context.Context, depositionID string) ([]models.Message, error)
	Depositions(ctx context.Context) ([]string, error)
	Count(ctx context.Context, depositionID string) (int, error)
}
