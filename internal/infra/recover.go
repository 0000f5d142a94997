package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it in a new goroutine after a panic.
// A negative maxPanics restarts forever, zero exits the process on the next panic.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			entry := log.WithFields(log.Fields{"job": id, "at": identifyPanic()})
			entry.Errorf("job panics with message: %v", err)
			switch {
			case maxPanics == 0:
				entry.Fatal("panics limit exceeded, exiting")
			case maxPanics > 0:
				maxPanics--
				entry.WithField("panics_left", maxPanics).Debug("recovering job")
				go GoRecoverable(maxPanics, id, f)
			default:
				entry.Debug("recovering job")
				go GoRecoverable(maxPanics, id, f)
			}
		}
	}()
	f()
}

// SafeCall runs fn and turns a panic into an error.
func SafeCall(id string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked at %s: %v", id, identifyPanic(), r)
		}
	}()
	return fn()
}

// identifyPanic reports the first frame outside the runtime package.
func identifyPanic() string {
	pcs := make([]uintptr, 16)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs)])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.Function, frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}
