//go:build unix

package pagefile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/arloliu/rdbe/errs"
)

// lockExclusive takes a non-blocking exclusive advisory lock on f, failing
// fast with ErrDatabaseLocked when another process already holds one.
func lockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return errs.ErrDatabaseLocked
	}

	return err
}

// unlock releases the advisory lock.
func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
