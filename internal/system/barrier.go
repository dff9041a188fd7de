package system

import "sync"

// barrier is a reusable, condition-variable-based rendezvous point for a
// fixed number of parties, implementing MultiProcessorSystem.global_barrier
// (SPEC_FULL.md §4.14) per the "mutual exclusion + condition-wait until all
// workers have arrived" discipline in §5. A generation counter lets the
// same barrier be waited on repeatedly across a run without a goroutine
// that arrives late for round N waking early on round N+1.
type barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation int
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks the caller until `parties` goroutines sharing this barrier
// have all called wait, then releases every one of them together.
func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.parties <= 1 {
		return
	}

	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}
