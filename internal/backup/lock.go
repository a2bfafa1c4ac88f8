// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"
)

// lockDelay is how often a blocked Acquire retries.
const lockDelay = 50 * time.Millisecond

// lockName derives the machine-wide mutex name for a backup directory.
// Names must start with a letter and stay short, so the path is hashed.
func lockName(backupDir string) string {
	abs, err := filepath.Abs(backupDir)
	if err != nil {
		abs = backupDir
	}
	sum := sha256.Sum256([]byte(abs))
	return "snapvault-" + hex.EncodeToString(sum[:8])
}

// acquireLock takes the advisory lock guarding backupDir. It gives up after
// timeout or when ctx is cancelled and returns ErrLocked.
func acquireLock(ctx context.Context, backupDir string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = lockDelay
	}
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    lockName(backupDir),
		Clock:   clock.WallClock,
		Delay:   lockDelay,
		Timeout: timeout,
		Cancel:  ctx.Done(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return releaser.Release, nil
}
