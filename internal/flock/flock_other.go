//go:build !unix

package flock

import "os"

// No advisory locking outside unix; callers must serialize themselves.
func lock(*os.File, bool) error { return nil }

func unlock(*os.File) error { return nil }
