package ports

import (
	"context"

	"github.com/genc-murat/weatherstation/internal/core/models"
)

// Storage makes the store's views outlive the process.
type Storage interface {
	Flush(ctx context.Context, snap models.Snapshot) error
	Load(ctx context.Context) (models.Snapshot, error)
	Close() error
}
