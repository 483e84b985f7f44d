package model

import "time"

// CursorID is the id of the only cursor record
const CursorID = 0

// Cursor is the persisted posting progress
type Cursor struct {
	ID    int `json:"id"`
	Index int `json:"index"`
	// LastReplied is reserved per-platform reply bookkeeping. It is stored and
	// round-tripped but nothing reads it.
	LastReplied map[string]string `json:"last_replied,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewCursor returns the first-run cursor
func NewCursor() Cursor {
	return Cursor{ID: CursorID, Index: 0, LastReplied: map[string]string{}}
}

// Normalize returns the index to post for a sequence of length n.
// Out of range values heal to 0.
func (c Cursor) Normalize(n int) int {
	if c.Index < 0 || c.Index >= n {
		return 0
	}
	return c.Index
}

// Advance returns a copy of c pointing at the message after index,
// wrapping at n.
func (c Cursor) Advance(index, n int) Cursor {
	next := c
	next.Index = (index + 1) % n
	return next
}
