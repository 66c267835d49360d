package attempt

import (
	"sync"

	"github.com/google/uuid"
)

// FlagSet holds the questions marked for review. Advisory only.
type FlagSet struct {
	mu    sync.Mutex
	flags map[uuid.UUID]struct{}
}

func NewFlagSet() *FlagSet {
	return &FlagSet{flags: make(map[uuid.UUID]struct{})}
}

// Toggle flips the flag and returns the new value.
func (f *FlagSet) Toggle(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flags[id]; ok {
		delete(f.flags, id)
		return false
	}
	f.flags[id] = struct{}{}
	return true
}

func (f *FlagSet) Has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.flags[id]
	return ok
}

func (f *FlagSet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flags)
}
