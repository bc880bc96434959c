package worker

import (
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

// Run is the state of one ingestion pass. It owns the set of restaurants
// currently being crawled.
type Run struct {
	summary menu.RunSummary

	mu         sync.Mutex
	inProgress map[int64]struct{}
}

func newRun(id string, started time.Time) *Run {
	return &Run{
		summary: menu.RunSummary{
			RunID:     id,
			StartedAt: started,
			Status:    menu.RunRunning,
		},
		inProgress: make(map[int64]struct{}),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.summary.RunID
}

// InProgress lists restaurant ids currently being crawled, ascending.
func (r *Run) InProgress() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.inProgress))
	for id := range r.inProgress {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *Run) begin(restaurantID int64) {
	r.mu.Lock()
	r.inProgress[restaurantID] = struct{}{}
	r.mu.Unlock()
}

func (r *Run) end(restaurantID int64) {
	r.mu.Lock()
	delete(r.inProgress, restaurantID)
	r.mu.Unlock()
}
