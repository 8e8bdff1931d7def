package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type record struct {
	TaskID string `json:"task_id"`
	Final  string `json:"final"`
}

func readLines(t *testing.T, path string) []record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func TestJournalWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "tasks", 8, 1, nil)
	j.now = func() time.Time { return time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC) }

	for _, id := range []string{"a", "b", "c"} {
		if err := j.Write(record{TaskID: id, Final: "Done"}); err != nil {
			t.Fatalf("Write(%s) = %v", id, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	got := readLines(t, filepath.Join(dir, "2026-03-04", "tasks.jsonl"))
	if len(got) != 3 || got[0].TaskID != "a" || got[2].TaskID != "c" {
		t.Fatalf("lines = %+v; want a, b, c", got)
	}
}

func TestJournalRotatesByDate(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "tasks", 1, 1, nil)
	day := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return day }

	// Write synchronously so the clock change lands between records.
	j.writeRecord(record{TaskID: "first"})
	day = day.Add(24 * time.Hour)
	j.writeRecord(record{TaskID: "second"})
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	if got := readLines(t, filepath.Join(dir, "2026-03-04", "tasks.jsonl")); len(got) != 1 || got[0].TaskID != "first" {
		t.Fatalf("day one = %+v", got)
	}
	if got := readLines(t, filepath.Join(dir, "2026-03-05", "tasks.jsonl")); len(got) != 1 || got[0].TaskID != "second" {
		t.Fatalf("day two = %+v", got)
	}
}

func TestJournalWriteAfterClose(t *testing.T) {
	j := NewJournal(t.TempDir(), "tasks", 1, 1, nil)
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Write(record{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write() after Close = %v; want ErrClosed", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close() = %v; want nil", err)
	}
}
