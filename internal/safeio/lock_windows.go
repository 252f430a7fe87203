//go:build windows

package safeio

import "os"

// Windows has no flock. Whole-file writes stay safe through atomic replace;
// appends from concurrent hook processes rely on O_APPEND semantics for the
// short lines written by this package.
func flock(_ *os.File, _ bool) error { return nil }

func funlock(_ *os.File) error { return nil }
