package memory

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	agentctx "github.com/agentloom/turnengine/internal/context"
	"github.com/agentloom/turnengine/pkg/models"
)

// ItemStore persists models.MemoryItem records as append-only JSONL: one
// file per UTC day for Episodic items, a single file per scope for the
// other layers. Writes are serialized per file; reads are lock-free and
// reconstruct current state by keeping, per item id, the most recently
// appended record.
type ItemStore struct {
	root string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewItemStore opens (creating if needed) a structured memory store rooted
// at dir.
func NewItemStore(dir string) (*ItemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create item store root: %w", err)
	}
	return &ItemStore{root: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Fingerprint computes the deduplication fingerprint for an item: a hash of
// its scope, type, and normalized content. Two items with the same
// fingerprint in the same scope are considered the same fact.
func Fingerprint(scope string, itemType models.MemoryItemType, content string) string {
	norm := strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(scope + "|" + string(itemType) + "|" + norm))
	return hex.EncodeToString(sum[:])
}

func (s *ItemStore) fileLock(path string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func scopeDirName(scope string) string {
	return strings.NewReplacer(":", "_", "/", "__").Replace(scope)
}

// scopeFiles returns every JSONL file that may hold records for scope,
// across all layers.
func (s *ItemStore) scopeFiles(scope string) ([]string, error) {
	var files []string

	singleDir := filepath.Join(s.root, "single")
	for _, layer := range []models.MemoryLayer{models.MemoryLayerWorking, models.MemoryLayerSemantic, models.MemoryLayerProcedural} {
		path := filepath.Join(singleDir, string(layer), scopeDirName(scope)+".jsonl")
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}

	episodicDir := filepath.Join(s.root, "episodic", scopeDirName(scope))
	entries, err := os.ReadDir(episodicDir)
	if err != nil {
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, fmt.Errorf("memory: list episodic files: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, filepath.Join(episodicDir, e.Name()))
	}
	return files, nil
}

func (s *ItemStore) pathFor(item *models.MemoryItem, now time.Time) string {
	if item.Layer == models.MemoryLayerEpisodic {
		day := now.UTC().Format("2006-01-02")
		return filepath.Join(s.root, "episodic", scopeDirName(item.Scope), day+".jsonl")
	}
	return filepath.Join(s.root, "single", string(item.Layer), scopeDirName(item.Scope)+".jsonl")
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: create item store dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("memory: marshal item: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open item store file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("memory: append item: %w", err)
	}
	return nil
}

// Write appends item to its scope/layer file. If item.ID is empty, a new id
// is assigned. If item.Fingerprint is empty, it is computed from
// scope/type/content. Fingerprint uniqueness within scope is enforced by
// superseding the prior Active item sharing the same fingerprint, unless its
// content is already identical (a true no-op re-write, which is skipped).
func (s *ItemStore) Write(ctx context.Context, item *models.MemoryItem) error {
	if item.Scope == "" {
		return fmt.Errorf("memory: item scope is required")
	}
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Fingerprint == "" {
		item.Fingerprint = Fingerprint(item.Scope, item.Type, item.Content)
	}
	if item.Status == "" {
		item.Status = models.MemoryStatusActive
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.LastAccessedAt.IsZero() {
		item.LastAccessedAt = now
	}

	existing, err := s.findActiveByFingerprint(item.Scope, item.Fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Content == item.Content {
			return nil
		}
		existing.Status = models.MemoryStatusSuperseded
		existing.SupersededByID = item.ID
		existing.UpdatedAt = now
		path := s.pathFor(existing, existing.CreatedAt)
		lock := s.fileLock(path)
		lock.Lock()
		err := appendLine(path, existing)
		lock.Unlock()
		if err != nil {
			return err
		}
	}

	path := s.pathFor(item, now)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()
	return appendLine(path, item)
}

func (s *ItemStore) findActiveByFingerprint(scope, fingerprint string) (*models.MemoryItem, error) {
	items, err := s.Retrieve(context.Background(), scope, RetrieveOptions{IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Fingerprint == fingerprint && it.Status == models.MemoryStatusActive {
			return it, nil
		}
	}
	return nil, nil
}

// RetrieveOptions narrows a Retrieve call.
type RetrieveOptions struct {
	// Layer, if set, restricts results to a single layer.
	Layer models.MemoryLayer
	// Limit caps the number of items returned (0 = unlimited).
	Limit int
	// IncludeArchived includes Superseded/Archived items. Default retrieval
	// excludes them per the spec's MemoryItem invariant.
	IncludeArchived bool
}

// Retrieve reads every record for scope, collapses the append log to the
// latest record per item id, drops expired and (by default) non-Active
// items, and returns the survivors ordered by salience descending then
// recency descending.
func (s *ItemStore) Retrieve(ctx context.Context, scope string, opts RetrieveOptions) ([]*models.MemoryItem, error) {
	files, err := s.scopeFiles(scope)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*models.MemoryItem)
	for _, path := range files {
		if err := readItemsInto(path, latest); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	items := make([]*models.MemoryItem, 0, len(latest))
	for _, it := range latest {
		if opts.Layer != "" && it.Layer != opts.Layer {
			continue
		}
		if it.Expired(now) {
			continue
		}
		if !opts.IncludeArchived && it.Status != models.MemoryStatusActive {
			continue
		}
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Salience != items[j].Salience {
			return items[i].Salience > items[j].Salience
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

func readItemsInto(path string, into map[string]*models.MemoryItem) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memory: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item models.MemoryItem
		if err := json.Unmarshal(line, &item); err != nil {
			continue // tolerate a partially-written trailing line
		}
		into[item.ID] = &item
	}
	return scanner.Err()
}

// Pack renders items into a newline-delimited memory pack bounded by a token
// budget (estimated via internal/context.EstimateTokens), highest salience
// first. Items that would overflow the budget are dropped, not truncated.
func Pack(items []*models.MemoryItem, maxTokens int) string {
	var b strings.Builder
	used := 0
	for _, it := range items {
		line := fmt.Sprintf("- [%s/%s] %s", it.Layer, it.Type, it.Content)
		cost := agentctx.EstimateTokens(line)
		if used+cost > maxTokens {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		used += cost
	}
	return b.String()
}
