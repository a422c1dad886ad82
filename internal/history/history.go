// Package history keeps finished dictations in a JSONL file.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// legacyWPM estimates speaking time for entries recorded without a duration.
const legacyWPM = 150.0

// Entry is one finished dictation.
type Entry struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Raw          string    `json:"raw,omitempty"`
	App          string    `json:"app,omitempty"`
	Category     string    `json:"category,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	DurationSec  float64   `json:"duration_sec"`
	TranscribeMS int64     `json:"transcribe_ms,omitempty"`
	FormatMS     int64     `json:"format_ms,omitempty"`
	TotalMS      int64     `json:"total_ms,omitempty"`
	Chunks       int       `json:"chunks,omitempty"`
	UsedLLM      bool      `json:"used_llm,omitempty"`
}

// Words counts whitespace-separated words in the final text.
func (e Entry) Words() int { return len(strings.Fields(e.Text)) }

// Store appends entries to path and keeps the newest max in memory.
type Store struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []Entry // oldest first
	lines   int
	skipped int
}

// Open loads path if it exists. Malformed lines are skipped.
func Open(path string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = 100
	}
	s := &Store{path: path, max: limit}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		s.lines++
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			s.skipped++
			continue
		}
		s.entries = append(s.entries, e)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	s.trim()
	return nil
}

func (s *Store) trim() {
	if len(s.entries) > s.max {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-s.max:]...)
	}
}

// Skipped reports how many lines failed to parse on load.
func (s *Store) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Append assigns an id and timestamp when missing and persists e.
func (s *Store) Append(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return e, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.trim()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return e, err
	}
	// rewrite once the file holds twice what we keep
	if s.lines+1 > 2*s.max {
		return e, s.compact()
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return e, fmt.Errorf("append history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return e, fmt.Errorf("append history: %w", err)
	}
	s.lines++
	return e, nil
}

func (s *Store) compact() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range s.entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("compact history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("compact history: %w", err)
	}
	s.lines = len(s.entries)
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 means all.
func (s *Store) Recent(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

// Clear drops every entry and truncates the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.lines = 0
	if err := os.WriteFile(s.path, nil, 0o644); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Stats summarises the retained history.
type Stats struct {
	Entries      int     `json:"entries"`
	Words        int     `json:"words"`
	SpokenSec    float64 `json:"spoken_sec"`
	TypingSec    float64 `json:"typing_sec"`
	SavedMinutes float64 `json:"saved_minutes"`
}

// Stats compares the time it would take to type every word at typingWPM with
// the time spent speaking. Entries without a duration are assumed to have
// been spoken at 150 wpm.
func (s *Store) Stats(typingWPM int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.entries, typingWPM)
}

// Summarize is Stats over an arbitrary slice.
func Summarize(entries []Entry, typingWPM int) Stats {
	if typingWPM <= 0 {
		typingWPM = 40
	}
	var st Stats
	st.Entries = len(entries)
	for _, e := range entries {
		w := e.Words()
		st.Words += w
		if e.DurationSec > 0 {
			st.SpokenSec += e.DurationSec
		} else {
			st.SpokenSec += float64(w) / (legacyWPM / 60)
		}
	}
	st.TypingSec = float64(st.Words) / (float64(typingWPM) / 60)
	st.SavedMinutes = (st.TypingSec - st.SpokenSec) / 60
	return st
}

// FormatSaved renders minutes saved the way the status line shows it.
func FormatSaved(minutes float64) string {
	if minutes < 0.1 {
		return "0 mins"
	}
	return fmt.Sprintf("%.1f mins", minutes)
}
