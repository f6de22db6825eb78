package pubfile

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type outcomeKind int8

const (
	outcomeReady outcomeKind = iota
	outcomeTimedOut
	outcomePollFailed
)

// Outcome is the tri-state result of WaitReadable. A timeout is a distinct,
// non-error outcome; only a failure of the polling facility itself carries an
// error code.
type Outcome struct {
	kind  outcomeKind
	errno unix.Errno
}

var (
	ready    = Outcome{kind: outcomeReady}
	timedOut = Outcome{kind: outcomeTimedOut}
)

func pollFailed(errno unix.Errno) Outcome {
	return Outcome{kind: outcomePollFailed, errno: errno}
}

// Ready reports that the descriptor became readable before the deadline.
func (o Outcome) Ready() bool { return o.kind == outcomeReady }

// TimedOut reports that the deadline elapsed with no data pending.
func (o Outcome) TimedOut() bool { return o.kind == outcomeTimedOut }

// Failed reports that the polling facility itself returned an error.
func (o Outcome) Failed() bool { return o.kind == outcomePollFailed }

// Errno returns the platform error code of a failed wait, verbatim.
// It is zero unless Failed.
func (o Outcome) Errno() unix.Errno { return o.errno }

// Err returns a non-nil error only for a failed wait. A timeout is not an
// error and yields nil here; check TimedOut separately.
func (o Outcome) Err() error {
	if o.kind != outcomePollFailed {
		return nil
	}
	return os.NewSyscallError("select", o.errno)
}

func (o Outcome) String() string {
	switch o.kind {
	case outcomeReady:
		return "ready"
	case outcomeTimedOut:
		return "timed out"
	default:
		return "poll failed: " + o.errno.Error()
	}
}

// WaitReadable blocks the calling goroutine until fd is readable or until
// timeoutSeconds elapse, whichever comes first. The timeout has whole-second
// granularity; zero performs an immediate check without blocking.
//
// Each call builds its own private descriptor set, so concurrent waits on
// different descriptors are independent. A descriptor outside the range the
// select facility can represent fails with EINVAL rather than timing out.
//
// An interrupted wait (EINTR) is surfaced as a failure; no retry is
// attempted. Callers that need to survive signals must retry themselves.
func WaitReadable(fd int, timeoutSeconds int) Outcome {
	if fd < 0 || fd >= unix.FD_SETSIZE {
		return pollFailed(unix.EINVAL)
	}
	if timeoutSeconds < 0 {
		return pollFailed(unix.EINVAL)
	}

	var fds unix.FdSet
	fds.Set(fd)
	tv := unix.NsecToTimeval((time.Duration(timeoutSeconds) * time.Second).Nanoseconds())

	n, err := unix.Select(fd+1, &fds, nil, nil, &tv)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return pollFailed(errno)
		}
		return pollFailed(unix.EIO)
	}
	if n == 0 || !fds.IsSet(fd) {
		return timedOut
	}
	return ready
}
