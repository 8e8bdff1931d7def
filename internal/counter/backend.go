package counter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgnsrekt/shotpost/internal/config"
)

// FileBackend keeps a counter as a decimal integer in a plain text file.
type FileBackend struct {
	Path string
}

func (b FileBackend) Load() (int, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrAbsent
		}
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, ErrAbsent
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", b.Path, err)
	}
	return v, nil
}

func (b FileBackend) Save(v int) error {
	if dir := filepath.Dir(b.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(v)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}

// DocumentBackend keeps a counter in the ig_counter field of the settings
// document.
type DocumentBackend struct {
	Doc *config.Document
}

func (b DocumentBackend) Load() (int, error) {
	s, err := b.Doc.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrAbsent
		}
		return 0, err
	}
	if s.IGCounter == nil {
		return 0, ErrAbsent
	}
	return *s.IGCounter, nil
}

func (b DocumentBackend) Save(v int) error {
	return b.Doc.Update(func(s *config.Settings) {
		s.IGCounter = &v
	})
}
