package journal

import "context"

// Store persists journal entries. AppendEntry must reject an entry whose
// sequence number is already taken.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)
	LastSequence(ctx context.Context) (uint64, error)
}

// ListOpts selects entries with Sequence > AfterSequence, in sequence order.
type ListOpts struct {
	AfterSequence uint64
	Limit         int
}
