package autonomy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentloom/turnengine/pkg/models"
)

// DiaryStore persists DiaryEntry records, one append-only file per UTC day
// (spec §6's `auto/diary/YYYY-MM-DD.jsonl`).
type DiaryStore interface {
	// Append records a new entry under its CreatedAt day.
	Append(ctx context.Context, entry models.DiaryEntry) error

	// ReadDay returns every entry recorded on the given UTC day.
	ReadDay(ctx context.Context, day time.Time) ([]models.DiaryEntry, error)

	// Recent returns up to limit entries for a goal or task, most recent
	// first, scanning backward from today. Used to inject diary context
	// into auto-mode turns (spec §4.3).
	Recent(ctx context.Context, goalID, taskID string, limit int) ([]models.DiaryEntry, error)
}

// FileDiaryStore is a DiaryStore backed by append-only JSONL files under
// root, one per UTC day, mirroring internal/memory.ItemStore's appendLine
// idiom.
type FileDiaryStore struct {
	root string
	mu   sync.Mutex
}

// NewFileDiaryStore creates a diary store rooted at dir (typically
// `auto/diary`).
func NewFileDiaryStore(dir string) (*FileDiaryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("autonomy: create diary store root: %w", err)
	}
	return &FileDiaryStore{root: dir}, nil
}

func (s *FileDiaryStore) pathForDay(day time.Time) string {
	return filepath.Join(s.root, day.UTC().Format("2006-01-02")+".jsonl")
}

func (s *FileDiaryStore) Append(ctx context.Context, entry models.DiaryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathForDay(entry.CreatedAt)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("autonomy: marshal diary entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("autonomy: open diary file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("autonomy: append diary entry: %w", err)
	}
	return nil
}

func (s *FileDiaryStore) ReadDay(ctx context.Context, day time.Time) ([]models.DiaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDayLocked(day)
}

func (s *FileDiaryStore) readDayLocked(day time.Time) ([]models.DiaryEntry, error) {
	path := s.pathForDay(day)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("autonomy: open diary file: %w", err)
	}
	defer f.Close()

	var entries []models.DiaryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.DiaryEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("autonomy: decode diary entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("autonomy: scan diary file: %w", err)
	}
	return entries, nil
}

// Recent scans backward from today, day by day, collecting entries that
// match goalID or taskID (whichever is non-empty) until limit is reached
// or 30 days have been scanned with nothing found.
func (s *FileDiaryStore) Recent(ctx context.Context, goalID, taskID string, limit int) ([]models.DiaryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.DiaryEntry
	now := time.Now().UTC()
	for i := 0; i < 30 && len(matched) < limit; i++ {
		day := now.AddDate(0, 0, -i)
		entries, err := s.readDayLocked(day)
		if err != nil {
			return nil, err
		}
		for j := len(entries) - 1; j >= 0; j-- {
			e := entries[j]
			if goalID != "" && e.GoalID != goalID {
				continue
			}
			if taskID != "" && e.TaskID != taskID {
				continue
			}
			matched = append(matched, e)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

var _ DiaryStore = (*FileDiaryStore)(nil)
