package opqueue

import "github.com/locomote-sh/locomote/internal/locoerrors"

// ErrCancellation is returned by a runtime tree's Future when it was
// abandoned via ClearPending before completing.
var ErrCancellation = locoerrors.ErrCancellation
