package repositories

import (
	"errors"
	"sync"
	"time"

	"github.com/cfarena/tournament-system/models"
)

var (
	ErrNotFound     = errors.New("tournament not found")
	ErrCodeConflict = errors.New("tournament code already in use")
)

// TournamentRepository is the process-wide tournament store. Implementations
// must serialize all mutations of a given tournament: Update runs its
// callback under that tournament's own lock, and the snapshots returned by
// Get/Update are deep copies that can be read or marshalled without holding
// any lock. Operations on different tournaments never contend.
type TournamentRepository interface {
	Create(t *models.Tournament) error
	Get(code string) (*models.Tournament, error)
	Update(code string, fn func(*models.Tournament) error) (*models.Tournament, error)
	Delete(code string)
	Exists(code string) bool
	List() []*models.Tournament
}

type entry struct {
	mu sync.Mutex
	t  *models.Tournament
}

// InMemoryTournamentRepository keeps all tournaments in process memory.
// Restart loses everything; reconnect-and-refetch is the recovery model.
type InMemoryTournamentRepository struct {
	mu    sync.RWMutex
	items map[string]*entry
}

func NewInMemoryTournamentRepository() *InMemoryTournamentRepository {
	return &InMemoryTournamentRepository{items: make(map[string]*entry)}
}

func (r *InMemoryTournamentRepository) Create(t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.Code]; ok {
		return ErrCodeConflict
	}
	r.items[t.Code] = &entry{t: t}
	return nil
}

func (r *InMemoryTournamentRepository) Get(code string) (*models.Tournament, error) {
	e, err := r.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.Clone(), nil
}

// Update applies fn to the tournament under its lock and returns a snapshot
// of the result. An error from fn leaves the tournament unchanged only if fn
// itself made no partial writes; callers mutate last, after validation.
func (r *InMemoryTournamentRepository) Update(code string, fn func(*models.Tournament) error) (*models.Tournament, error) {
	e, err := r.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.t); err != nil {
		return nil, err
	}
	return e.t.Clone(), nil
}

func (r *InMemoryTournamentRepository) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, code)
}

func (r *InMemoryTournamentRepository) Exists(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[code]
	return ok
}

// List returns snapshots of every stored tournament, used by the reaper.
func (r *InMemoryTournamentRepository) List() []*models.Tournament {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*models.Tournament, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.t.Clone())
		e.mu.Unlock()
	}
	return out
}

func (r *InMemoryTournamentRepository) entry(code string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[code]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// StaleBefore reports whether a tournament is safe to reap: it either never
// filled up or has finished, and predates the cutoff.
func StaleBefore(t *models.Tournament, cutoff time.Time) bool {
	if !t.CreatedAt.Before(cutoff) {
		return false
	}
	return t.Status == models.TournamentStatusWaiting || t.Status == models.TournamentStatusComplete
}
