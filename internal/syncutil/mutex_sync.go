//go:build !deadlock

// Package syncutil provides the mutex types used across comlink.
// Plain builds use sync.Mutex and sync.RWMutex. Build with -tags=deadlock to
// swap in github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// DeadlockDetection reports whether the deadlock-detecting mutexes are compiled in.
const DeadlockDetection = false

// Mutex wraps sync.Mutex.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}
