package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnshRaj112/tasklist-backend/internal/database"
	"github.com/AnshRaj112/tasklist-backend/internal/models"
	"github.com/AnshRaj112/tasklist-backend/pkg/utils"
)

// DefaultWriteDebounce is the quiet period before a pending collection is written.
const DefaultWriteDebounce = 100 * time.Millisecond

// Notifier receives a snapshot after every accepted mutation that clients
// should see. It is called while the owner is locked, so it must not block.
type Notifier interface {
	Broadcast(ownerKey string, tasks []models.Task)
}

// PersistFunc writes one owner's collection to durable storage.
type PersistFunc func(ownerKey string, c models.Collection) error

type TaskStoreOption func(*TaskStore)

func WithWriteDebounce(d time.Duration) TaskStoreOption {
	return func(s *TaskStore) {
		if d > 0 {
			s.debounce = d
		}
	}
}

func WithNotifier(n Notifier) TaskStoreOption {
	return func(s *TaskStore) { s.notifier = n }
}

// WithPersistFunc replaces the file writer. Tests use it to count writes.
func WithPersistFunc(fn PersistFunc) TaskStoreOption {
	return func(s *TaskStore) { s.persist = fn }
}

func WithClock(now func() time.Time) TaskStoreOption {
	return func(s *TaskStore) { s.now = now }
}

// TaskStore owns every owner's task collection. State is sharded by owner
// key; all reads and mutations for one owner run under that owner's lock.
type TaskStore struct {
	layout   database.Layout
	debounce time.Duration
	notifier Notifier
	persist  PersistFunc
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	shards map[string]*ownerShard
	closed atomic.Bool
}

// ownerShard is the write cache and pending timer for one owner.
type ownerShard struct {
	mu      sync.Mutex
	loaded  bool
	coll    models.Collection
	pending bool
	timer   *time.Timer
	gen     uint64
}

func NewTaskStore(layout database.Layout, log *slog.Logger, opts ...TaskStoreOption) *TaskStore {
	s := &TaskStore{
		layout:   layout,
		debounce: DefaultWriteDebounce,
		now:      time.Now,
		log:      log.With("component", "task_store"),
		shards:   make(map[string]*ownerShard),
	}
	s.persist = s.writeCollection
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskStore) shard(ownerKey string) *ownerShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[ownerKey]
	if !ok {
		sh = &ownerShard{}
		s.shards[ownerKey] = sh
	}
	return sh
}

// Load returns the owner's collection. The pending in-memory version wins
// over disk; a missing file yields an empty collection.
func (s *TaskStore) Load(ownerKey string) (models.Collection, error) {
	sh := s.shard(ownerKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if err := s.ensureLoaded(ownerKey, sh); err != nil {
		return models.Collection{}, err
	}
	return sh.coll.Clone(), nil
}

// caller holds sh.mu
func (s *TaskStore) ensureLoaded(ownerKey string, sh *ownerShard) error {
	if sh.loaded {
		return nil
	}
	data, found, err := database.ReadFile(s.layout.TaskFile(ownerKey))
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}
	coll := models.EmptyCollection()
	if found {
		coll, err = models.DecodeCollection(data)
		if err != nil {
			return fmt.Errorf("decode task file: %w", err)
		}
	}
	sh.coll = coll
	sh.loaded = true
	return nil
}

// mutate runs fn against a copy of the owner's collection. On success the
// copy replaces the cached state, a write is scheduled and, if fn asks for
// it, the new snapshot is broadcast before the owner lock is released.
func (s *TaskStore) mutate(ownerKey string, fn func(c *models.Collection) (notify bool, err error)) error {
	sh := s.shard(ownerKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if err := s.ensureLoaded(ownerKey, sh); err != nil {
		return err
	}

	next := sh.coll.Clone()
	notify, err := fn(&next)
	if err != nil {
		return err
	}
	sh.coll = next

	if err := s.schedule(ownerKey, sh); err != nil {
		return err
	}
	if notify && s.notifier != nil {
		s.notifier.Broadcast(ownerKey, next.Clone().Tasks)
	}
	return nil
}

// schedule (re)arms the owner's debounce timer. Once the store is closed,
// writes happen immediately. Caller holds sh.mu.
func (s *TaskStore) schedule(ownerKey string, sh *ownerShard) error {
	sh.pending = true
	if sh.timer != nil {
		sh.timer.Stop()
		sh.timer = nil
	}
	sh.gen++

	if s.closed.Load() {
		return s.flushLocked(ownerKey, sh)
	}

	gen := sh.gen
	sh.timer = time.AfterFunc(s.debounce, func() {
		s.flushScheduled(ownerKey, sh, gen)
	})
	return nil
}

func (s *TaskStore) flushScheduled(ownerKey string, sh *ownerShard, gen uint64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// A newer mutation or an explicit flush superseded this timer.
	if sh.gen != gen || !sh.pending {
		return
	}
	sh.timer = nil
	if err := s.flushLocked(ownerKey, sh); err != nil {
		// Stays pending; the next mutation reschedules the write.
		s.log.Error("debounced write failed", "owner", shortKey(ownerKey), "error", err)
	}
}

// caller holds sh.mu
func (s *TaskStore) flushLocked(ownerKey string, sh *ownerShard) error {
	if !sh.pending {
		return nil
	}
	if err := s.persist(ownerKey, sh.coll.Clone()); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	sh.pending = false
	return nil
}

func (s *TaskStore) writeCollection(ownerKey string, c models.Collection) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return database.WriteFileAtomic(s.layout.TaskFile(ownerKey), data)
}

// Add appends a task with the next id (max existing + 1).
func (s *TaskStore) Add(ownerKey, text string) (models.Task, error) {
	text, err := utils.NormalizeTaskText(text)
	if err != nil {
		return models.Task{}, err
	}

	var created models.Task
	err = s.mutate(ownerKey, func(c *models.Collection) (bool, error) {
		created = models.Task{
			ID:        c.MaxID() + 1,
			Text:      text,
			CreatedAt: s.now().UnixMilli(),
		}
		c.Tasks = append(c.Tasks, created)
		return true, nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return created, nil
}

// Update applies the non-nil fields of patch to task id.
func (s *TaskStore) Update(ownerKey string, id int64, patch models.TaskPatch) (models.Task, error) {
	var text string
	if patch.Text != nil {
		normalized, err := utils.NormalizeTaskText(*patch.Text)
		if err != nil {
			return models.Task{}, err
		}
		text = normalized
	}

	var updated models.Task
	err := s.mutate(ownerKey, func(c *models.Collection) (bool, error) {
		i := c.IndexOf(id)
		if i < 0 {
			return false, &NotFoundError{What: "task"}
		}
		t := &c.Tasks[i]
		if patch.Text != nil {
			t.Text = text
		}
		if patch.Done != nil {
			t.Done = *patch.Done
		}
		if patch.Favorite != nil {
			t.Favorite = *patch.Favorite
		}
		updated = *t
		return true, nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return updated, nil
}

// Remove deletes task id and returns it.
func (s *TaskStore) Remove(ownerKey string, id int64) (models.Task, error) {
	var removed models.Task
	err := s.mutate(ownerKey, func(c *models.Collection) (bool, error) {
		i := c.IndexOf(id)
		if i < 0 {
			return false, &NotFoundError{What: "task"}
		}
		removed = c.Tasks[i]
		c.Tasks = append(c.Tasks[:i], c.Tasks[i+1:]...)
		return true, nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return removed, nil
}

// ReplaceAll swaps in tasks verbatim, ids included. A nil slice is not a list.
func (s *TaskStore) ReplaceAll(ownerKey string, tasks []models.Task) error {
	if tasks == nil {
		return newValidationError("tasks", "not a list")
	}
	return s.mutate(ownerKey, func(c *models.Collection) (bool, error) {
		c.Tasks = append(make([]models.Task, 0, len(tasks)), tasks...)
		return true, nil
	})
}

// SetOrderMode changes the display order. Clients are not notified; the
// order mode only travels with the synchronous read path.
func (s *TaskStore) SetOrderMode(ownerKey, mode string) (models.OrderMode, error) {
	parsed, ok := models.ParseOrderMode(mode)
	if !ok {
		return "", newValidationError("orderMode", "invalid order mode")
	}
	err := s.mutate(ownerKey, func(c *models.Collection) (bool, error) {
		c.OrderMode = parsed
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return parsed, nil
}

// EnsureCollection writes an empty task file for an owner that has none.
func (s *TaskStore) EnsureCollection(ownerKey string) error {
	sh := s.shard(ownerKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.loaded && sh.pending {
		return nil
	}
	ok, err := s.layout.HasTaskFile(ownerKey)
	if err != nil {
		return fmt.Errorf("stat task file: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.persist(ownerKey, models.EmptyCollection()); err != nil {
		return fmt.Errorf("create task file: %w", err)
	}
	sh.coll = models.EmptyCollection()
	sh.loaded = true
	return nil
}

// HasData reports whether the owner has pending, live or archived task data.
func (s *TaskStore) HasData(ownerKey string) (bool, error) {
	sh := s.shard(ownerKey)
	sh.mu.Lock()
	pending := sh.pending
	sh.mu.Unlock()
	if pending {
		return true, nil
	}

	live, err := s.layout.HasTaskFile(ownerKey)
	if err != nil || live {
		return live, err
	}
	return s.layout.HasArchive(ownerKey)
}

// Archive flushes the owner's pending write, moves the live task file into
// the archive directory and broadcasts an empty list. It returns the
// archive file's base name.
func (s *TaskStore) Archive(ownerKey string) (string, error) {
	sh := s.shard(ownerKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s.stopTimer(sh)
	if err := s.flushLocked(ownerKey, sh); err != nil {
		return "", err
	}

	src := s.layout.TaskFile(ownerKey)
	ok, err := s.layout.HasTaskFile(ownerKey)
	if err != nil {
		return "", fmt.Errorf("stat task file: %w", err)
	}
	if !ok {
		return "", &NotFoundError{What: "task data"}
	}

	dst := s.layout.ArchiveFile(ownerKey, s.now())
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("archive task file: %w", err)
	}

	sh.coll = models.EmptyCollection()
	sh.loaded = false
	sh.pending = false

	if s.notifier != nil {
		s.notifier.Broadcast(ownerKey, []models.Task{})
	}
	s.log.Info("archived task data", "owner", shortKey(ownerKey), "file", filepath.Base(dst))
	return filepath.Base(dst), nil
}

// caller holds sh.mu
func (s *TaskStore) stopTimer(sh *ownerShard) {
	if sh.timer != nil {
		sh.timer.Stop()
		sh.timer = nil
	}
	// Invalidate a callback that already fired and is waiting on sh.mu.
	sh.gen++
}

// Flush synchronously writes every pending collection and cancels its timer.
func (s *TaskStore) Flush() error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.shards))
	shards := make([]*ownerShard, 0, len(s.shards))
	for k, sh := range s.shards {
		keys = append(keys, k)
		shards = append(shards, sh)
	}
	s.mu.Unlock()

	var errs []error
	flushed := 0
	for i, sh := range shards {
		sh.mu.Lock()
		s.stopTimer(sh)
		if sh.pending {
			if err := s.flushLocked(keys[i], sh); err != nil {
				errs = append(errs, fmt.Errorf("owner %s: %w", shortKey(keys[i]), err))
			} else {
				flushed++
			}
		}
		sh.mu.Unlock()
	}
	if flushed > 0 {
		s.log.Info("flushed pending writes", "owners", flushed)
	}
	return errors.Join(errs...)
}

// Close stops debouncing and flushes everything. Mutations accepted after
// Close are written synchronously.
func (s *TaskStore) Close() error {
	s.closed.Store(true)
	return s.Flush()
}

// shortKey keeps owner keys out of logs in full.
func shortKey(ownerKey string) string {
	if len(ownerKey) > 8 {
		return ownerKey[:8]
	}
	return ownerKey
}
