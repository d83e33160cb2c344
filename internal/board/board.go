// Package board owns the session state of the task dashboard: the per-day
// task buckets, the mutation surface the user drives, and the write-behind
// persistence of those mutations. In-memory state is authoritative for the
// session; store writes are best-effort and never block a mutation.
package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"growthboard/internal/metrics"
	"growthboard/internal/models"
	"growthboard/internal/plan"
	"growthboard/internal/progress"
)

var ErrTaskNotFound = errors.New("task not found")

type Store interface {
	InsertTask(ctx context.Context, t models.Task) (string, error)
	SetTaskStatus(ctx context.Context, id, userID, status string) error
	UpdateTaskFields(ctx context.Context, id, userID, title, description string) error
	SetTaskNote(ctx context.Context, id, userID, note string) error
	DeleteTask(ctx context.Context, id, userID string) error
	SaveProfile(ctx context.Context, p models.Profile) error
}

type Resolver interface {
	Resolve(ctx context.Context, p models.Profile, day int) plan.Result
}

type Board struct {
	store    Store
	resolver Resolver
	tracker  *progress.Tracker
	rules    []SkipRule
	log      *slog.Logger

	mu         sync.Mutex
	profile    models.Profile
	days       map[int][]*models.Task
	loaded     map[int]bool
	locked     map[int]bool
	skips      map[string]int
	currentDay int
	nudge      *Nudge

	writes  chan func(context.Context) error
	pending atomic.Int64
	wg      sync.WaitGroup
}

func New(store Store, resolver Resolver, tracker *progress.Tracker, p models.Profile, rules []SkipRule, log *slog.Logger) *Board {
	b := &Board{
		store:      store,
		resolver:   resolver,
		tracker:    tracker,
		rules:      rules,
		log:        log,
		profile:    p,
		days:       make(map[int][]*models.Task),
		loaded:     make(map[int]bool),
		locked:     make(map[int]bool),
		skips:      make(map[string]int),
		currentDay: 1,
		writes:     make(chan func(context.Context) error, 256),
	}
	go b.writer()
	return b
}

// writer applies queued store writes one at a time, so two mutations to the
// same task can never arrive at the store out of order.
func (b *Board) writer() {
	for fn := range b.writes {
		if err := fn(context.Background()); err != nil {
			b.log.Warn("write-behind: store write failed", "err", err)
		}
		metrics.DecPendingWrites()
		b.pending.Add(-1)
		b.wg.Done()
	}
}

func (b *Board) enqueue(fn func(context.Context) error) {
	b.wg.Add(1)
	b.pending.Add(1)
	metrics.IncPendingWrites()
	b.writes <- fn
}

// PendingWrites reports queued writes not yet applied.
func (b *Board) PendingWrites() int64 { return b.pending.Load() }

// Flush blocks until all writes queued so far have been applied.
func (b *Board) Flush() { b.wg.Wait() }

// Close drains the write queue and stops the writer.
func (b *Board) Close() {
	b.wg.Wait()
	close(b.writes)
}

func (b *Board) Profile() models.Profile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profile
}

func (b *Board) Progress() progress.Snapshot { return b.tracker.Snapshot() }

// SetProfile swaps the session profile after an external save.
func (b *Board) SetProfile(p models.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profile = p
}

// LoadDay returns the tasks to display for a day, resolving (and possibly
// generating) them on first access. The second return value is false when the
// user navigated to another day while the resolve was in flight; such results
// are discarded.
func (b *Board) LoadDay(ctx context.Context, day int) ([]models.Task, bool, bool) {
	b.mu.Lock()
	b.currentDay = day
	if b.loaded[day] {
		tasks := b.snapshotLocked(day)
		locked := b.locked[day]
		b.mu.Unlock()
		return tasks, locked, true
	}
	profile := b.profile
	b.mu.Unlock()

	// The resolve blocks the visible task list, so it runs outside the lock.
	res := b.resolver.Resolve(ctx, profile, day)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.currentDay != day {
		return nil, false, false
	}
	b.mergeLocked(day, res.Tasks)
	b.loaded[day] = true
	b.locked[day] = res.Locked
	for d, spill := range res.Spillover {
		b.mergeLocked(d, spill)
	}
	return b.snapshotLocked(day), res.Locked, true
}

// Invalidate drops a day's cached bucket so the next load re-resolves it.
func (b *Board) Invalidate(day int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.days, day)
	delete(b.loaded, day)
}

// Tasks returns a snapshot of a day's bucket without resolving.
func (b *Board) Tasks(day int) []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(day)
}

// Complete marks a task done, awards XP, and bumps the streak if this cleared
// the whole day. Task status and aggregates go out as independent writes.
func (b *Board) Complete(key string) (progress.Snapshot, error) {
	b.mu.Lock()
	t, day := b.findLocked(key)
	if t == nil {
		b.mu.Unlock()
		return progress.Snapshot{}, ErrTaskNotFound
	}
	if t.Completed() {
		b.mu.Unlock()
		return b.tracker.Snapshot(), nil
	}
	t.Status = models.StatusCompleted
	now := time.Now().UTC()
	t.CompletedAt = &now
	cleared := true
	for _, other := range b.days[day] {
		if !other.Completed() {
			cleared = false
			break
		}
	}
	userID := b.profile.UserID
	xp := t.XP
	b.mu.Unlock()

	snap := b.tracker.ApplyCompletion(xp, cleared)
	metrics.RecordMutation("complete")

	b.enqueue(func(ctx context.Context) error {
		id, err := b.materialize(ctx, t)
		if err != nil {
			return err
		}
		return b.store.SetTaskStatus(ctx, id, userID, models.StatusCompleted)
	})
	b.enqueue(b.tracker.PersistXP)
	b.enqueue(b.tracker.PersistStats)
	return snap, nil
}

// Skip marks a task skipped and runs the skip rules. A non-nil Nudge is a
// suggestion awaiting AcceptNudge; it is not applied here.
func (b *Board) Skip(key string) (*Nudge, error) {
	b.mu.Lock()
	t, day := b.findLocked(key)
	if t == nil {
		b.mu.Unlock()
		return nil, ErrTaskNotFound
	}
	t.Status = models.StatusSkipped
	t.SkippedCount++
	platform := detectPlatform(*t)
	if platform != "" {
		b.skips[platform]++
	}
	ev := SkipEvent{Task: *t, Platform: platform, PlatformSkips: b.skips[platform], Day: day}
	userID := b.profile.UserID
	var nudge *Nudge
	for _, rule := range b.rules {
		if n := rule.Evaluate(ev); n != nil {
			nudge = n
			break
		}
	}
	b.nudge = nudge
	b.mu.Unlock()

	metrics.RecordMutation("skip")
	b.enqueue(func(ctx context.Context) error {
		id, err := b.materialize(ctx, t)
		if err != nil {
			return err
		}
		return b.store.SetTaskStatus(ctx, id, userID, models.StatusSkipped)
	})
	return nudge, nil
}

// AcceptNudge applies the pending skip nudge: the platform joins the avoid
// list and the substitute task lands in the next day's bucket.
func (b *Board) AcceptNudge() (models.Task, error) {
	b.mu.Lock()
	n := b.nudge
	if n == nil {
		b.mu.Unlock()
		return models.Task{}, errors.New("no pending nudge")
	}
	b.nudge = nil
	if !contains(b.profile.AvoidPlatforms, n.Platform) {
		b.profile.AvoidPlatforms = append(b.profile.AvoidPlatforms, n.Platform)
	}
	profile := b.profile
	sub := n.Substitute
	sub.UserID = profile.UserID
	sub.LocalID = "tmp-" + uuid.NewString()
	task := &sub
	b.days[n.SubstituteDay] = append(b.days[n.SubstituteDay], task)
	b.mu.Unlock()

	b.enqueue(func(ctx context.Context) error {
		return b.store.SaveProfile(ctx, profile)
	})
	b.enqueue(func(ctx context.Context) error {
		_, err := b.materialize(ctx, task)
		return err
	})
	return sub, nil
}

// Nudge returns the pending skip nudge, if any.
func (b *Board) Nudge() *Nudge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nudge
}

// Add creates a custom task in the current day's bucket. The store row is
// written behind; the local entry is patched with the store id once the
// insert lands, so later mutations have a row to target.
func (b *Board) Add(title, description string) models.Task {
	b.mu.Lock()
	day := b.currentDay
	t := &models.Task{
		LocalID:     "tmp-" + uuid.NewString(),
		UserID:      b.profile.UserID,
		Title:       title,
		Description: description,
		Category:    models.CategoryCustom,
		Status:      models.StatusPending,
		XP:          models.DefaultTaskXP,
		CreatedAt:   time.Now().UTC(),
		Meta: models.TaskMeta{
			Day:    day,
			Week:   plan.WeekOf(day),
			Month:  plan.MonthOf(day),
			Source: models.SourceManual,
		},
	}
	b.days[day] = append(b.days[day], t)
	snapshot := *t
	b.mu.Unlock()

	metrics.RecordMutation("add")
	b.enqueue(func(ctx context.Context) error {
		_, err := b.materialize(ctx, t)
		return err
	})
	return snapshot
}

// Update merges title/description edits. Tasks without a store id are
// materialized lazily before the field update is applied.
func (b *Board) Update(key string, title, description *string) (models.Task, error) {
	b.mu.Lock()
	t, _ := b.findLocked(key)
	if t == nil {
		b.mu.Unlock()
		return models.Task{}, ErrTaskNotFound
	}
	if title != nil {
		t.Title = *title
	}
	if description != nil {
		t.Description = *description
	}
	userID := b.profile.UserID
	snapshot := *t
	b.mu.Unlock()

	metrics.RecordMutation("update")
	b.enqueue(func(ctx context.Context) error {
		id, err := b.materialize(ctx, t)
		if err != nil {
			return err
		}
		b.mu.Lock()
		curTitle, curDesc := t.Title, t.Description
		b.mu.Unlock()
		return b.store.UpdateTaskFields(ctx, id, userID, curTitle, curDesc)
	})
	return snapshot, nil
}

// SetNote annotates a task, lazy-materializing the row like Update does.
func (b *Board) SetNote(key, note string) error {
	b.mu.Lock()
	t, _ := b.findLocked(key)
	if t == nil {
		b.mu.Unlock()
		return ErrTaskNotFound
	}
	t.Note = note
	userID := b.profile.UserID
	b.mu.Unlock()

	metrics.RecordMutation("note")
	b.enqueue(func(ctx context.Context) error {
		id, err := b.materialize(ctx, t)
		if err != nil {
			return err
		}
		return b.store.SetTaskNote(ctx, id, userID, note)
	})
	return nil
}

// Delete removes a task locally and, if a store row exists by the time the
// write runs, deletes it too.
func (b *Board) Delete(key string) error {
	b.mu.Lock()
	t, day := b.findLocked(key)
	if t == nil {
		b.mu.Unlock()
		return ErrTaskNotFound
	}
	bucket := b.days[day]
	for i := range bucket {
		if bucket[i] == t {
			b.days[day] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	userID := b.profile.UserID
	b.mu.Unlock()

	metrics.RecordMutation("delete")
	b.enqueue(func(ctx context.Context) error {
		b.mu.Lock()
		id := t.ID
		b.mu.Unlock()
		if id == "" {
			// Never materialized; nothing to delete remotely.
			return nil
		}
		return b.store.DeleteTask(ctx, id, userID)
	})
	return nil
}

// Reorder replaces a day's bucket order. Session-local only: there is no
// ordinal column, so a reload falls back to store insertion order.
func (b *Board) Reorder(day int, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.days[day]
	byKey := make(map[string]*models.Task, len(bucket))
	for _, t := range bucket {
		byKey[t.Key()] = t
	}
	ordered := make([]*models.Task, 0, len(bucket))
	for _, key := range keys {
		if t, ok := byKey[key]; ok {
			ordered = append(ordered, t)
			delete(byKey, key)
		}
	}
	for _, t := range bucket {
		if _, left := byKey[t.Key()]; left {
			ordered = append(ordered, t)
		}
	}
	b.days[day] = ordered
	metrics.RecordMutation("reorder")
	return nil
}

// materialize returns the task's store id, inserting the row first if the
// task only ever existed client-side. Runs on the writer goroutine, so a
// queued insert from Add has always landed before a later mutation's lookup.
func (b *Board) materialize(ctx context.Context, t *models.Task) (string, error) {
	b.mu.Lock()
	if t.ID != "" {
		id := t.ID
		b.mu.Unlock()
		return id, nil
	}
	snapshot := *t
	b.mu.Unlock()

	id, err := b.store.InsertTask(ctx, snapshot)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	t.ID = id
	b.mu.Unlock()
	return id, nil
}

func (b *Board) findLocked(key string) (*models.Task, int) {
	for day, bucket := range b.days {
		for _, t := range bucket {
			if t.ID == key || t.LocalID == key {
				return t, day
			}
		}
	}
	return nil, 0
}

func (b *Board) snapshotLocked(day int) []models.Task {
	bucket := b.days[day]
	out := make([]models.Task, 0, len(bucket))
	for _, t := range bucket {
		out = append(out, *t)
	}
	return out
}

// mergeLocked appends tasks not already present in the bucket. Presence is
// checked by store id so a substitute task inserted behind the scenes is not
// duplicated when the resolver reads it back.
func (b *Board) mergeLocked(day int, tasks []models.Task) {
	existing := make(map[string]bool, len(b.days[day]))
	for _, t := range b.days[day] {
		if t.ID != "" {
			existing[t.ID] = true
		}
	}
	for i := range tasks {
		t := tasks[i]
		if t.ID != "" && existing[t.ID] {
			continue
		}
		b.days[day] = append(b.days[day], &t)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
