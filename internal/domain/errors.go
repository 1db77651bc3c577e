package domain

import "errors"

// Error taxonomy shared by adapters and the sync engine. Adapters wrap these
// with context; callers match them with errors.Is.
var (
	// ErrNotFound marks an absent device folder or file.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned by the feed when requests must slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrRenderFailure marks a candidate that could not be turned into a document.
	ErrRenderFailure = errors.New("render failed")
	// ErrDeleteFailure marks a device path that could not be removed.
	ErrDeleteFailure = errors.New("delete failed")
	// ErrLedgerCorrupt means the persisted ledger cannot be parsed.
	ErrLedgerCorrupt = errors.New("ledger corrupt")
	// ErrLedgerPersist means the ledger could not be written.
	ErrLedgerPersist = errors.New("ledger persist failed")
	// ErrAuthRequired means the session with a collaborator is no longer valid.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUnsafePath is an invariant violation: a deletion path escaped the target folder.
	ErrUnsafePath = errors.New("unsafe device path")
)
