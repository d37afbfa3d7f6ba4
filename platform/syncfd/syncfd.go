// Package syncfd creates, waits on and closes GPU completion handles that
// can cross a process boundary.
//
// A handle is a file descriptor that becomes readable once the work it
// tracks has completed, the same contract as a Linux sync_file. Handles
// created here are eventfds; Wait also works on sync files exported by a
// GPU driver. A negative handle means "already complete".
package syncfd

import (
	"errors"
	"math"
	"time"
)

// ErrUnsupported is returned on platforms without file-descriptor fences.
var ErrUnsupported = errors.New("syncfd: not supported on this platform")

// timeoutMillis converts a timeout for poll(2). Negative timeouts wait
// forever; positive ones round up to the next millisecond and are clamped
// to the largest value poll accepts.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d > (math.MaxInt32-1)*time.Millisecond {
		return math.MaxInt32
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
