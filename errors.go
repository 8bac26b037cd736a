package denkmit

import "errors"

var (
	// ErrConfiguration reports an invalid dataset or node parameter, such as
	// a Pollard order outside [1,7] or an unknown hash algorithm.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrIncompatibleStructure reports a comparison between nodes of
	// different orders.
	ErrIncompatibleStructure = errors.New("incompatible structure")
	// ErrNotReady reports an attempt to serialize or identify a node whose
	// hash layers are stale.
	ErrNotReady = errors.New("node hash layers are stale")
	// ErrEmptyTree is returned when the root of a dataset without entries is
	// requested.
	ErrEmptyTree = errors.New("tree is empty")
	// ErrConsensusRejected reports an entry that failed the consensus
	// predicate during a write or merge.
	ErrConsensusRejected = errors.New("rejected by consensus")
	// ErrNotFound reports a missing block, head, manifest or entry.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStructure reports a malformed block received from storage or
	// from a remote replica.
	ErrInvalidStructure = errors.New("invalid structure")
	// ErrClosed is returned for work submitted to, or dropped by, a closed
	// database.
	ErrClosed = errors.New("database closed")
)
