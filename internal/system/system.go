// Package system implements MultiProcessorSystem (SPEC_FULL.md §4.14): the
// owner of every core in a multi-core run, the shared CoherenceDirectory,
// an optional shared L2/L3, and the interconnect they all contend on.
package system

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/cachesim/internal/cache"
	"github.com/sarchlab/cachesim/internal/coherence"
	"github.com/sarchlab/cachesim/internal/core"
	"github.com/sarchlab/cachesim/internal/interconnect"
	"github.com/sarchlab/cachesim/internal/stats"
)

// Access is one trace record destined for a particular core's worker.
type Access struct {
	IsWrite bool
	Address uint64
}

// Config bundles the knobs New needs to build a multi-core run.
type Config struct {
	Cores        []core.Config
	SharedL2     *cache.Config
	Interconnect interconnect.Interconnect
}

// System owns every core in a run, the shared directory, the optional
// shared L2/L3, and the interconnect. It implements core.PeerInvalidator,
// dispatching an invalidation raised by one core's coherence request to the
// matching peer core.
type System struct {
	cores     []*core.Core
	byID      map[int]*core.Core
	directory *coherence.Directory
	ic        interconnect.Interconnect

	l2   *cache.Cache
	l2mu sync.Mutex

	barrier *barrier
}

// New constructs a System from cfg. Every core shares the same directory
// and interconnect by reference, per §5's shared-resource table.
func New(cfg Config) (*System, error) {
	s := &System{
		directory: coherence.NewDirectory(),
		ic:        cfg.Interconnect,
		byID:      make(map[int]*core.Core),
	}

	if cfg.SharedL2 != nil {
		l2, err := cache.New(*cfg.SharedL2)
		if err != nil {
			return nil, err
		}
		s.l2 = l2
	}

	for _, cc := range cfg.Cores {
		c, err := core.New(cc, s.directory, s.ic)
		if err != nil {
			return nil, err
		}
		c.SetRegistry(s)
		s.cores = append(s.cores, c)
		s.byID[c.ID()] = c
	}
	s.barrier = newBarrier(len(s.cores))
	return s, nil
}

// Cores returns every core, in the order given to New.
func (s *System) Cores() []*core.Core { return s.cores }

// Directory returns the shared coherence directory.
func (s *System) Directory() *coherence.Directory { return s.directory }

// HandleInvalidate implements core.PeerInvalidator by dispatching to the
// core identified by coreID; a target that does not exist is silently
// ignored (it cannot happen in practice, since InvalidatedProcessors only
// ever names a core that itself issued a prior request to this directory).
func (s *System) HandleInvalidate(coreID int, addr uint64) {
	if c, ok := s.byID[coreID]; ok {
		c.HandleInvalidate(addr)
	}
}

// HandleDowngrade implements core.PeerInvalidator by dispatching to the
// core identified by coreID, dropping its line to Shared rather than
// invalidating it outright.
func (s *System) HandleDowngrade(coreID int, addr uint64) {
	if c, ok := s.byID[coreID]; ok {
		c.HandleDowngrade(addr)
	}
}

// L2Access serializes a shared L2/L3 access behind a single mutex, per
// SPEC_FULL.md §5's "mutual exclusion around cache lookup/install" rule for
// shared cache levels. ok is false if no shared L2 was configured.
func (s *System) L2Access(addr uint64, isWrite bool) (result cache.AccessResult, ok bool) {
	if s.l2 == nil {
		return cache.AccessResult{}, false
	}
	s.l2mu.Lock()
	defer s.l2mu.Unlock()
	return s.l2.Access(addr, isWrite), true
}

// L2Stats returns a snapshot of the shared L2/L3's counters, or the zero
// Snapshot if none was configured.
func (s *System) L2Stats() stats.Snapshot {
	if s.l2 == nil {
		return stats.Snapshot{}
	}
	s.l2mu.Lock()
	defer s.l2mu.Unlock()
	return s.l2.Stats()
}

// GlobalBarrier blocks the calling worker until every core's worker has
// entered the barrier, then releases all of them together.
func (s *System) GlobalBarrier() {
	s.barrier.wait()
}

// RunStats summarizes one SimulateParallelTraces call.
type RunStats struct {
	// CycleLength is the longest per-core cycle count observed: the run's
	// length, per SPEC_FULL.md §4.14.
	CycleLength uint64
	PerCore     []uint64
}

// SimulateParallelTraces spawns one worker goroutine per core via
// errgroup.Group, each processing traces[i] strictly in trace order
// through cores()[i]. A worker returns an error only when ctx is
// cancelled; panics are not recovered here.
// A shorter traces slice leaves the remaining cores idle.
func (s *System) SimulateParallelTraces(ctx context.Context, traces [][]Access) (RunStats, error) {
	g, ctx := errgroup.WithContext(ctx)

	for i, c := range s.cores {
		if i >= len(traces) {
			continue
		}
		c, trace := c, traces[i]
		g.Go(func() error {
			for _, a := range trace {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				c.Access(a.Address, a.IsWrite)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return RunStats{}, err
	}

	result := RunStats{PerCore: make([]uint64, len(s.cores))}
	for i, c := range s.cores {
		cycles := c.Cycles()
		result.PerCore[i] = cycles
		if cycles > result.CycleLength {
			result.CycleLength = cycles
		}
	}
	return result, nil
}
