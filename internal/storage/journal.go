// Package storage appends finished task records to date-organized JSON
// lines files.
package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("journal is closed")
	ErrBufferFull = errors.New("journal buffer full")
)

// Journal writes records asynchronously to <dir>/<YYYY-MM-DD>/<name>.jsonl,
// rotating by size with lumberjack and by UTC date.
type Journal struct {
	dir       string
	name      string
	maxSizeMB int
	logger    *slog.Logger
	now       func() time.Time

	writeCh chan any
	wg      sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	mu          sync.Mutex
	currentDate string
	out         *lumberjack.Logger
}

// NewJournal starts a journal writing name.jsonl files under dir.
func NewJournal(dir, name string, bufferSize, maxSizeMB int, logger *slog.Logger) *Journal {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		dir:       dir,
		name:      name,
		maxSizeMB: maxSizeMB,
		logger:    logger,
		now:       time.Now,
		writeCh:   make(chan any, bufferSize),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Write queues record. It never blocks; a full buffer drops the record.
func (j *Journal) Write(record any) error {
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	select {
	case j.writeCh <- record:
		return nil
	default:
		j.logger.Warn("journal buffer full, dropping record", "name", j.name)
		return ErrBufferFull
	}
}

// Close flushes queued records and closes the current file.
func (j *Journal) Close() error {
	j.closeMu.Lock()
	if j.closed {
		j.closeMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.writeCh)
	j.closeMu.Unlock()

	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.out != nil {
		return j.out.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for record := range j.writeCh {
		j.writeRecord(record)
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		j.logger.Error("journal marshal failed", "name", j.name, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().UTC().Format("2006-01-02")
	if date != j.currentDate || j.out == nil {
		if err := j.rotateForDate(date); err != nil {
			j.logger.Error("journal rotate failed", "name", j.name, "error", err)
			return
		}
	}
	if _, err := j.out.Write(append(data, '\n')); err != nil {
		j.logger.Error("journal write failed", "name", j.name, "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.out != nil {
		_ = j.out.Close()
		j.out = nil
	}
	dir := filepath.Join(j.dir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, j.name+".jsonl")
	j.out = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     90,
	}
	j.currentDate = date
	j.logger.Debug("opened journal file", "file", filename)
	return nil
}
