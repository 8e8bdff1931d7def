// Package trash moves finished screenshots into the user's freedesktop.org
// home trash so they can be restored later.
package trash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ErrUnsupported is returned by Home on platforms without a freedesktop.org
// trash.
var ErrUnsupported = errors.New("trash: no freedesktop.org trash on this platform")

// Bin is the user's home trash.
type Bin struct{}

// Home returns the home trash, or ErrUnsupported where files would land in a
// directory the desktop never shows.
func Home() (*Bin, error) {
	if !supported {
		return nil, fmt.Errorf("%w (%s)", ErrUnsupported, runtime.GOOS)
	}
	return &Bin{}, nil
}

// Trash moves path into the home trash.
func (b *Bin) Trash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("trash: %w", err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return fmt.Errorf("trash: %w", err)
	}
	if err := moveToTrash(abs); err != nil {
		return fmt.Errorf("trash: %s: %w", filepath.Base(abs), err)
	}
	return nil
}
