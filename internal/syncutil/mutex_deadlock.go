//go:build deadlock

// Package syncutil provides the mutex types used across comlink.
// This file is compiled when building with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether the deadlock-detecting mutexes are compiled in.
const DeadlockDetection = true

// A sender holds its lock across busy waits and up to 2^MaxTries backoff
// slots, so lock waits of a minute and more are legitimate.
const lockWaitTimeout = 5 * time.Minute

func init() {
	deadlock.Opts.DeadlockTimeout = lockWaitTimeout
}

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}
