package memory

import (
	"context"
	"sync"
	"time"

	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/mode"

	"github.com/patrickmn/go-cache"
)

// modeWindow is the bounded ring of one session's resolved modes.
type modeWindow struct {
	mu    sync.Mutex
	modes []acb.Mode
}

// ModeHistoryRepository keeps per-session mode windows in process memory.
// Windows expire after a period without appends.
type ModeHistoryRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	size  int
}

// NewModeHistoryRepository creates a store whose idle windows expire after ttl.
func NewModeHistoryRepository(ttl time.Duration) *ModeHistoryRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ModeHistoryRepository{
		cache: cache.New(ttl, 10*time.Minute),
		size:  mode.WindowSize,
	}
}

// window returns the session's window, creating it when absent, and refreshes
// its expiration.
func (r *ModeHistoryRepository) window(key string, create bool) *modeWindow {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(key); found {
		w := x.(*modeWindow)
		if create {
			r.cache.Set(key, w, cache.DefaultExpiration)
		}
		return w
	}
	if !create {
		return nil
	}
	w := &modeWindow{}
	r.cache.Set(key, w, cache.DefaultExpiration)
	return w
}

// LastModes returns up to n most recent modes, oldest first.
func (r *ModeHistoryRepository) LastModes(_ context.Context, key string, n int) ([]acb.Mode, error) {
	w := r.window(key, false)
	if w == nil || n <= 0 {
		return []acb.Mode{}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	start := len(w.modes) - n
	if start < 0 {
		start = 0
	}
	out := make([]acb.Mode, len(w.modes)-start)
	copy(out, w.modes[start:])
	return out, nil
}

// AppendMode records m, dropping the oldest entry beyond the window size.
func (r *ModeHistoryRepository) AppendMode(_ context.Context, key string, m acb.Mode) error {
	w := r.window(key, true)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.modes = append(w.modes, m)
	if len(w.modes) > r.size {
		w.modes = append([]acb.Mode(nil), w.modes[len(w.modes)-r.size:]...)
	}
	return nil
}

// Delete forgets a session's window.
func (r *ModeHistoryRepository) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(key)
}
