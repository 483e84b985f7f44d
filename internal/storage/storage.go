package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
)

// ErrCorrupt is returned when the cursor record exists but cannot be trusted
var ErrCorrupt = errors.New("storage: cursor record is corrupt")

// CursorStore persists the singleton posting cursor
type CursorStore interface {
	// Load returns the cursor, creating the first-run record when the
	// store is empty
	Load(ctx context.Context) (model.Cursor, error)
	// Save overwrites the whole cursor record
	Save(ctx context.Context, c model.Cursor) error
	Close() error
}

// Validate checks a loaded record
func Validate(c model.Cursor) error {
	if c.ID != model.CursorID {
		return fmt.Errorf("%w: unexpected id %d", ErrCorrupt, c.ID)
	}
	if c.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrCorrupt, c.Index)
	}
	return nil
}
