package nanokrnl

import "github.com/pingcap/errors"

// Errors returned by the kernel lifecycle.
var (
	ErrKernelRunning = errors.New("kernel is already running")
	ErrKernelStopped = errors.New("kernel is not running")
	ErrInvalidPeriod = errors.New("timer period must be a whole number of milliseconds")
)
