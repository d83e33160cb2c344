// Package progress derives streak, XP and level from completion events and
// persists the aggregates.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"growthboard/internal/models"
)

// XPToNextLevel is fixed: every level costs the same 100 XP.
const XPToNextLevel = 100

func Level(xp int) int { return xp/XPToNextLevel + 1 }

// LevelProgress is the progress-bar fraction within the current level.
func LevelProgress(xp int) float64 {
	return float64(xp%XPToNextLevel) / float64(XPToNextLevel)
}

type Store interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	SaveProfile(ctx context.Context, p models.Profile) error
	UpsertStats(ctx context.Context, st models.ProgressStats) error
}

type Snapshot struct {
	XP            int     `json:"xp"`
	Level         int     `json:"level"`
	XPToNext      int     `json:"xp_to_next_level"`
	LevelFraction float64 `json:"level_fraction"`
	Streak        int     `json:"streak"`
	TotalDone     int     `json:"total_tasks_completed"`
}

// Tracker holds a user's progress scalars for the session. The in-memory
// values are authoritative; persistence happens as two independent writes
// (profile XP blob and the stats row), matching the mutation surface's
// write-behind model.
type Tracker struct {
	store Store
	log   *slog.Logger

	mu           sync.Mutex
	userID       string
	xp           int
	streak       int
	totalDone    int
	lastActivity *time.Time
}

func NewTracker(store Store, log *slog.Logger, p models.Profile, st models.ProgressStats) *Tracker {
	return &Tracker{
		store:        store,
		log:          log,
		userID:       p.UserID,
		xp:           p.XP,
		streak:       st.CurrentStreak,
		totalDone:    st.TotalCompleted,
		lastActivity: st.LastActivity,
	}
}

// ApplyCompletion registers a completed task. The streak moves only when the
// completion cleared the whole day.
func (t *Tracker) ApplyCompletion(xp int, dayCleared bool) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if xp <= 0 {
		xp = models.DefaultTaskXP
	}
	t.xp += xp
	t.totalDone++
	if dayCleared {
		t.streak++
	}
	now := time.Now().UTC()
	t.lastActivity = &now
	return t.snapshotLocked()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		XP:            t.xp,
		Level:         Level(t.xp),
		XPToNext:      XPToNextLevel,
		LevelFraction: LevelProgress(t.xp),
		Streak:        t.streak,
		TotalDone:     t.totalDone,
	}
}

// PersistXP folds the session XP into the profile blob. Read-modify-write:
// concurrent writers from another session can race, which the interactive
// path accepts (the nightly recount heals the totals, not the XP).
func (t *Tracker) PersistXP(ctx context.Context) error {
	t.mu.Lock()
	xp := t.xp
	userID := t.userID
	t.mu.Unlock()

	p, err := t.store.GetProfile(ctx, userID)
	if err != nil {
		p = models.Profile{UserID: userID}
	}
	p.XP = xp
	return t.store.SaveProfile(ctx, p)
}

func (t *Tracker) PersistStats(ctx context.Context) error {
	t.mu.Lock()
	st := models.ProgressStats{
		UserID:         t.userID,
		CurrentStreak:  t.streak,
		LastActivity:   t.lastActivity,
		TotalCompleted: t.totalDone,
	}
	t.mu.Unlock()
	return t.store.UpsertStats(ctx, st)
}
