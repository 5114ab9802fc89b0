// Package growth runs the ambient growth tick: a few source blocks sprout a new block on
// the free cell directly above them.
package growth

import (
	"context"
	"io"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"voxelgarden.ai/internal/sim/grid"
	"voxelgarden.ai/internal/sim/world"
)

type Config struct {
	Interval time.Duration
	// MaxPct bounds the picks per tick to about MaxPct of the source blocks.
	MaxPct float64
	Source string
	Grows  string
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Source == "" {
		c.Source = world.BlockGrass
	}
	if c.Grows == "" {
		c.Grows = world.BlockHay
	}
}

type Report struct {
	Candidates int
	Picked     int
	Grown      int
	Blocked    int
	Cells      []grid.Cell
}

type Scheduler struct {
	w   *world.World
	cfg Config
	log *log.Logger

	mu  sync.Mutex // serializes Step and guards rng
	rng *rand.Rand

	stop     chan struct{}
	stopOnce sync.Once

	ticks atomic.Uint64
	grown atomic.Uint64
}

// New creates a scheduler. A nil rng is seeded from the clock; a nil logger discards.
func New(w *world.World, cfg Config, rng *rand.Rand, logger *log.Logger) *Scheduler {
	cfg.applyDefaults()
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{
		w:    w,
		cfg:  cfg,
		log:  logger,
		rng:  rng,
		stop: make(chan struct{}),
	}
}

func (s *Scheduler) Config() Config { return s.cfg }

// PickCount is floor(r*(n*maxPct+1)) for r in [0,1).
func PickCount(r float64, n int, maxPct float64) int {
	k := int(math.Floor(r * (float64(n)*maxPct + 1)))
	if k > n {
		k = n
	}
	return k
}

// Step runs one growth tick.
func (s *Scheduler) Step() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	cells := s.w.CellsOf(s.cfg.Source)
	rep := Report{Candidates: len(cells)}
	rep.Picked = PickCount(s.rng.Float64(), len(cells), s.cfg.MaxPct)

	// Partial Fisher-Yates: the first Picked entries are a sample without replacement.
	for i := 0; i < rep.Picked; i++ {
		j := i + s.rng.Intn(len(cells)-i)
		cells[i], cells[j] = cells[j], cells[i]

		above := cells[i].Up()
		if s.w.IsOccupied(above) {
			rep.Blocked++
			continue
		}
		if res := s.w.Build(world.ActorGrowth, s.cfg.Grows, above); res.OK() {
			rep.Grown++
			rep.Cells = append(rep.Cells, above)
		} else {
			rep.Blocked++
		}
	}

	s.ticks.Add(1)
	s.grown.Add(uint64(rep.Grown))
	return rep
}

// Run steps on every interval until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Printf("every %s, %s grows on %s (max %.4f%%)", s.cfg.Interval, s.cfg.Grows, s.cfg.Source, s.cfg.MaxPct*100)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-ticker.C:
			rep := s.Step()
			if rep.Grown > 0 {
				s.log.Printf("tick=%d grown=%d picked=%d candidates=%d", s.ticks.Load(), rep.Grown, rep.Picked, rep.Candidates)
			}
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

type Stats struct {
	Ticks uint64 `json:"ticks"`
	Grown uint64 `json:"grown"`
}

func (s *Scheduler) Stats() Stats {
	return Stats{Ticks: s.ticks.Load(), Grown: s.grown.Load()}
}
