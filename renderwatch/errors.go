package renderwatch

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// ErrNotYetRendered is returned by CurrentRender before the first render.
var ErrNotYetRendered = errors.New("renderwatch: component has not rendered yet")

// ErrTimeout matches every *TimeoutError with errors.Is.
var ErrTimeout = errors.New("renderwatch: timed out waiting for render")

// ErrNoMarkupSource is returned by New when DOM snapshots are enabled
// without a markup source to capture from.
var ErrNoMarkupSource = errors.New("renderwatch: snapshot_dom requires a markup source")

// TimeoutError is returned when no render arrives within the wait timeout.
// Formatting it with %+v prints the stack of the call that started the
// wait, trimmed of renderwatch frames, which points at the test line.
type TimeoutError struct {
	Label    string
	Timeout  time.Duration
	Rendered int // renders recorded when the wait expired

	trace error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("renderwatch: timed out after %s waiting for render #%d", e.Timeout, e.Rendered+1)
	if e.Label != "" {
		msg += " (" + e.Label + ")"
	}
	return msg
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// StackTrace returns the frames of the waiting caller.
func (e *TimeoutError) StackTrace() pkgerrors.StackTrace {
	st, ok := e.trace.(interface{ StackTrace() pkgerrors.StackTrace })
	if !ok {
		return nil
	}
	return trimOwnFrames(st.StackTrace())
}

// Format implements fmt.Formatter.
func (e *TimeoutError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			io.WriteString(s, e.Error())
			fmt.Fprintf(s, "%+v", e.StackTrace())
			return
		}
		io.WriteString(s, e.Error())
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

const ownPackage = "github.com/hazyhaar/renderwatch/renderwatch."

// trimOwnFrames drops the leading frames that belong to this package.
func trimOwnFrames(st pkgerrors.StackTrace) pkgerrors.StackTrace {
	for i, f := range st {
		fn := runtime.FuncForPC(uintptr(f) - 1)
		if fn == nil || !strings.HasPrefix(fn.Name(), ownPackage) {
			return st[i:]
		}
	}
	return st
}
