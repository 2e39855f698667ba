// Package admin provides maintenance operations on the stored dataset.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/ipampa/internal/core"
	"github.com/JonMunkholm/ipampa/internal/logging"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// Reset deletes every stored index and value, atomically when the store
// supports transactions. It reports how many series were removed.
// This is a destructive operation; the next refresh repopulates the store.
func Reset(ctx context.Context, store core.Store) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	ds, err := store.Query(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset: %w", &core.StorageError{Op: "query", Err: err})
	}

	if _, err := core.Replace(ctx, store, nil); err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}

	logging.FromContext(ctx).Info("dataset reset", "removed", len(ds))
	return len(ds), nil
}
