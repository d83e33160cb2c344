package board

import (
	"context"
	"log/slog"
	"sync"

	"growthboard/internal/models"
	"growthboard/internal/progress"
)

// ManagerStore is the union of what a board and its tracker persist through.
type ManagerStore interface {
	Store
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	GetStats(ctx context.Context, userID string) (models.ProgressStats, error)
	UpsertStats(ctx context.Context, st models.ProgressStats) error
}

// Manager hands out one Board per user, loading profile and aggregate stats
// on first access.
type Manager struct {
	store    ManagerStore
	resolver Resolver
	log      *slog.Logger

	mu     sync.Mutex
	boards map[string]*Board
}

func NewManager(store ManagerStore, resolver Resolver, log *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		log:      log,
		boards:   make(map[string]*Board),
	}
}

func (m *Manager) ForUser(ctx context.Context, userID string) *Board {
	m.mu.Lock()
	if b, ok := m.boards[userID]; ok {
		m.mu.Unlock()
		return b
	}
	m.mu.Unlock()

	p, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		m.log.Debug("board: no stored profile, using defaults", "user", userID, "err", err)
		p = models.Profile{UserID: userID}
	}
	st, err := m.store.GetStats(ctx, userID)
	if err != nil {
		st = models.ProgressStats{UserID: userID}
	}
	tracker := progress.NewTracker(m.store, m.log, p, st)
	b := New(m.store, m.resolver, tracker, p, DefaultRules(), m.log)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.boards[userID]; ok {
		b.Close()
		return existing
	}
	m.boards[userID] = b
	return b
}

// Close drains every board's write queue; used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	boards := make([]*Board, 0, len(m.boards))
	for _, b := range m.boards {
		boards = append(boards, b)
	}
	m.mu.Unlock()
	for _, b := range boards {
		b.Close()
	}
}
