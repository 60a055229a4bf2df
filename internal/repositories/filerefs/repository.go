package filerefs

import (
	"context"

	"github.com/dmitrijs2005/depmsg/internal/models"
)

type Repository interface {
	// Insert stores a file reference and reports whether a row was added.
	// A reference whose uniqueness tuple already exists is left untouched.
	Insert(ctx context.Context, f *models.FileReference) (bool, error)
	ListByMessage(ctx context.Context, messageID string) ([]models.FileReference, error)
	ListByDeposition(ctx context.Context, depositionID string) ([]models.FileReference, error)
	Count(ctx context.Context, depositionID string) (int, error)
}
