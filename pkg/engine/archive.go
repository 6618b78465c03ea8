package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/reveriehq/reverie/pkg/archive"
	"github.com/reveriehq/reverie/pkg/guard"
)

// Export writes the chat's memory archive to w.
func (e *MemoryEngine) Export(ctx context.Context, chatID string, w io.Writer) error {
	return archive.New(e.store, e.vectors, e.logger).Export(ctx, chatID, w)
}

// Import replaces the chat's memory state with the archive read from r. It
// holds the vector-generation guard so floor syncs cannot race the restore.
func (e *MemoryEngine) Import(ctx context.Context, chatID string, r io.Reader) error {
	release, err := e.guards.TryAcquire(guard.ClassVectorGeneration)
	if err != nil {
		return fmt.Errorf("archive import: %w", err)
	}
	defer release()

	return archive.New(e.store, e.vectors, e.logger).Import(ctx, chatID, r)
}
