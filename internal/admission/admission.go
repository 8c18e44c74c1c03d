// Package admission bounds how many analysis calls of each content class may be
// in flight at once, so the external provider's throughput limits are respected.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// ErrUnknownClass is returned when a class has no configured capacity.
var ErrUnknownClass = errors.New("no capacity configured for content class")

// Config maps each content class to its concurrency limit.
type Config struct {
	Capacities map[types.ContentClass]int
}

// DefaultConfig returns limits where images tolerate more concurrency than videos.
func DefaultConfig() Config {
	return Config{
		Capacities: map[types.ContentClass]int{
			types.ClassImage: 8,
			types.ClassVideo: 2,
		},
	}
}

// classSlots pairs a weighted semaphore with an in-flight counter.
type classSlots struct {
	capacity int
	sem      *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	peak     int
}

// Limiter hands out per-class slots. Acquisition is atomic: two waiters can
// never both take the last slot.
type Limiter struct {
	classes map[types.ContentClass]*classSlots
}

// NewLimiter creates a limiter from cfg. Classes with a non-positive capacity are skipped.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{classes: make(map[types.ContentClass]*classSlots, len(cfg.Capacities))}
	for class, capacity := range cfg.Capacities {
		if capacity <= 0 {
			continue
		}
		l.classes[class] = &classSlots{
			capacity: capacity,
			sem:      semaphore.NewWeighted(int64(capacity)),
		}
	}
	return l
}

// WaitForSlot blocks until a slot for class is free or ctx is done.
// Every nil return must be paired with exactly one CompleteTask call.
func (l *Limiter) WaitForSlot(ctx context.Context, class types.ContentClass) error {
	slots, ok := l.classes[class]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	if err := slots.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire %s slot: %w", class, err)
	}

	slots.mu.Lock()
	slots.inFlight++
	if slots.inFlight > slots.peak {
		slots.peak = slots.inFlight
	}
	slots.mu.Unlock()
	return nil
}

// CompleteTask releases one slot for class.
func (l *Limiter) CompleteTask(class types.ContentClass) {
	slots, ok := l.classes[class]
	if !ok {
		return
	}

	slots.mu.Lock()
	if slots.inFlight == 0 {
		slots.mu.Unlock()
		panic(fmt.Sprintf("admission: CompleteTask(%s) without a held slot", class))
	}
	slots.inFlight--
	slots.mu.Unlock()

	slots.sem.Release(1)
}

// Stats is a point-in-time view of one class.
type Stats struct {
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
	Peak     int `json:"peak"`
}

// Stats returns the current counters for class.
func (l *Limiter) Stats(class types.ContentClass) Stats {
	slots, ok := l.classes[class]
	if !ok {
		return Stats{}
	}
	slots.mu.Lock()
	defer slots.mu.Unlock()
	return Stats{
		Capacity: slots.capacity,
		InFlight: slots.inFlight,
		Peak:     slots.peak,
	}
}
