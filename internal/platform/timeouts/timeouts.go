// Package timeouts defines the timeouts shared by the lancer tools.
package timeouts

import "time"

// StoreBusy is how long a SQLite connection waits on a locked database
// before failing the statement.
const StoreBusy = 5 * time.Second

// TraceFlush caps how long a command waits for pending spans on exit.
const TraceFlush = 5 * time.Second
