// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package swapring

import "errors"

// Errors returned by pool operations.
var (
	// ErrAllocation is returned when a platform buffer or device memory
	// cannot be allocated.
	ErrAllocation = errors.New("swapring: allocation failed")

	// ErrImport is returned when a platform buffer cannot be imported as a
	// GPU image. Callers are expected to fall back to a non-shared path.
	ErrImport = errors.New("swapring: image import failed")

	// ErrInvalidArgument is returned for invalid dimensions or formats.
	ErrInvalidArgument = errors.New("swapring: invalid argument")

	// ErrPoolClosed is returned when operations are attempted on a closed pool.
	ErrPoolClosed = errors.New("swapring: pool is closed")

	// ErrNoSlots is returned by Acquire after a failed Resize left the pool
	// without usable slots.
	ErrNoSlots = errors.New("swapring: pool has no usable slots")

	// ErrSlotBusy is returned by Acquire when the next slot is still bound
	// and was never submitted.
	ErrSlotBusy = errors.New("swapring: slot bound but not submitted")

	// ErrSyncTimeout marks a fence wait that exceeded its bound. It is only
	// logged; the pool recovers by waiting for the GPU to go idle.
	ErrSyncTimeout = errors.New("swapring: fence wait timed out")
)
