package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"voxelgarden.ai/internal/protocol"
	"voxelgarden.ai/internal/sim/world"
)

type session struct {
	id   string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newSession(id string, queue int) *session {
	return &session{id: id, out: make(chan []byte, queue), done: make(chan struct{})}
}

func (s *session) kick() { s.once.Do(func() { close(s.done) }) }

// send queues b without blocking. A session whose queue is full is kicked: it would
// otherwise render chunk tables that silently missed an update.
func (s *session) send(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- b:
		return true
	default:
		s.kick()
		return false
	}
}

// Hub fans applied mutations out to every connected session. It implements
// world.AuditLogger; dirty chunks are coalesced and sent as whole CHUNK tables.
type Hub struct {
	w        *world.World
	log      *log.Logger
	coalesce time.Duration

	// flushMu keeps a joining session's resync and Flush from interleaving.
	flushMu sync.Mutex

	mu          sync.Mutex
	sessions    map[string]*session
	dirty       map[int]struct{}
	ledgerDirty bool

	wake chan struct{}

	chunksSent atomic.Uint64
	kicked     atomic.Uint64
}

func NewHub(w *world.World, coalesce time.Duration, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if coalesce <= 0 {
		coalesce = 50 * time.Millisecond
	}
	return &Hub{
		w:        w,
		log:      logger,
		coalesce: coalesce,
		sessions: map[string]*session{},
		dirty:    map[int]struct{}{},
		wake:     make(chan struct{}, 1),
	}
}

func (h *Hub) WriteAudit(e world.AuditEntry) error {
	if e.Outcome != string(world.Applied) {
		return nil
	}
	h.mu.Lock()
	for _, idx := range e.Chunks {
		h.dirty[idx] = struct{}{}
	}
	if e.Actor == string(world.ActorPlayer) {
		h.ledgerDirty = true
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

// join registers s and queues a full resync of every chunk and the ledger. Views are taken
// after s is registered with Flush held off, so any later mutation is flushed to s too.
func (h *Hub) join(s *session) bool {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	h.add(s)
	seq := h.w.MutationSeq()
	for idx := 0; idx < h.w.NumChunks(); idx++ {
		b, err := h.chunkMessage(idx, seq)
		if err != nil {
			h.log.Printf("encode chunk %d: %v", idx, err)
			return false
		}
		if !s.send(b) {
			return false
		}
	}
	b, err := h.ledgerMessage(seq)
	if err != nil {
		return false
	}
	return s.send(b)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	if s, ok := h.sessions[id]; ok {
		s.kick()
		delete(h.sessions, id)
	}
	h.mu.Unlock()
}

func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Run flushes dirty state at most once per coalesce window until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.coalesce):
		}
		h.Flush()
	}
}

// Flush sends every dirty chunk and, if it changed, the ledger to all sessions.
func (h *Hub) Flush() {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	h.mu.Lock()
	idxs := make([]int, 0, len(h.dirty))
	for idx := range h.dirty {
		idxs = append(idxs, idx)
	}
	h.dirty = map[int]struct{}{}
	ledger := h.ledgerDirty
	h.ledgerDirty = false
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	if len(targets) == 0 || (len(idxs) == 0 && !ledger) {
		return
	}
	sort.Ints(idxs)

	var msgs [][]byte
	seq := h.w.MutationSeq()
	for _, idx := range idxs {
		b, err := h.chunkMessage(idx, seq)
		if err != nil {
			h.log.Printf("encode chunk %d: %v", idx, err)
			continue
		}
		msgs = append(msgs, b)
	}
	if ledger {
		b, err := h.ledgerMessage(seq)
		if err == nil {
			msgs = append(msgs, b)
		}
	}

	for _, s := range targets {
		for _, b := range msgs {
			if !s.send(b) {
				h.kicked.Add(1)
				h.log.Printf("session %s too slow, dropping", s.id)
				h.remove(s.id)
				break
			}
		}
	}
	h.chunksSent.Add(uint64(len(idxs) * len(targets)))
}

func (h *Hub) chunkMessage(idx int, seq uint64) ([]byte, error) {
	v, ok := h.w.ChunkView(idx)
	if !ok {
		return nil, errUnknownChunk
	}
	return json.Marshal(ChunkMsg(v, seq))
}

func (h *Hub) ledgerMessage(seq uint64) ([]byte, error) {
	return json.Marshal(protocol.LedgerMsg{
		Type:            protocol.TypeLedger,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Resources:       h.w.Ledger(),
	})
}

// ChunkMsg converts a chunk view to its wire form.
func ChunkMsg(v world.ChunkView, seq uint64) protocol.ChunkMsg {
	m := protocol.ChunkMsg{
		Type:            protocol.TypeChunk,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Index:           v.Index,
		Origin:          v.Origin.Array(),
		BoundsMin:       [3]float32(v.BoundsMin),
		BoundsMax:       [3]float32(v.BoundsMax),
		Tables:          make([]protocol.ChunkTable, 0, len(v.Tables)),
	}
	for _, t := range v.Tables {
		ct := protocol.ChunkTable{Block: t.Block, Count: t.Count, Transforms: make([][16]float32, len(t.Transforms))}
		for i, tr := range t.Transforms {
			ct.Transforms[i] = [16]float32(tr)
		}
		m.Tables = append(m.Tables, ct)
	}
	return m
}

type HubStats struct {
	Sessions   int    `json:"sessions"`
	ChunksSent uint64 `json:"chunks_sent"`
	Kicked     uint64 `json:"kicked"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{Sessions: h.Sessions(), ChunksSent: h.chunksSent.Load(), Kicked: h.kicked.Load()}
}
