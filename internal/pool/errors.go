package pool

import "errors"

var (
	// ErrInvalidState means the ride is not PENDING and cannot be matched.
	ErrInvalidState = errors.New("ride not eligible for matching")

	// ErrAlreadyCancelled means the ride was cancelled before; CANCELLED
	// is terminal.
	ErrAlreadyCancelled = errors.New("ride already cancelled")

	// ErrLockContention means another operation holds the pool's lock.
	// The engine never retries; the caller decides whether to re-invoke.
	ErrLockContention = errors.New("pool is being modified, try again")

	// ErrNoAvailableCab means new-pool allocation found no free cab.
	ErrNoAvailableCab = errors.New("no available cab")

	// ErrIntegrityFault means a referenced pool or cab is missing even
	// though the reference was valid, indicating a prior invariant
	// violation in stored data.
	ErrIntegrityFault = errors.New("referenced record missing")
)
