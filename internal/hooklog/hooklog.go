// Package hooklog is the stderr diagnostic channel for hook processes.
// stdout belongs to the host protocol and must never see log output, so
// everything here writes to stderr. Debug lines are gated on TRIADS_DEBUG.
package hooklog

import (
	"fmt"
	"os"
)

func debugEnabled() bool {
	v := os.Getenv("TRIADS_DEBUG")
	return v == "1" || v == "true"
}

func Debugf(format string, args ...any) {
	if !debugEnabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "triads: "+format+"\n", args...)
}

func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "triads: warning: "+format+"\n", args...)
}

func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "triads: error: "+format+"\n", args...)
}
