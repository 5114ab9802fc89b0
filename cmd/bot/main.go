package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"voxelgarden.ai/internal/protocol"
	"voxelgarden.ai/internal/sim/grid"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		every = flag.Duration("every", 2*time.Second, "delay between acts")
		seed  = flag.Int64("seed", 0, "rng seed (0 uses the clock)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        64,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{r: rand.New(rand.NewSource(*seed)), ledger: map[string]int{}}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Printf("connection closed")
				return
			}
			b.handle(logger, msg)
		case <-ticker.C:
			act, ok := b.next()
			if !ok {
				continue
			}
			if err := conn.WriteJSON(act); err != nil {
				logger.Printf("send ACT: %v", err)
				return
			}
		}
	}
}

type bot struct {
	r      *rand.Rand
	dims   grid.Dims
	ready  bool
	ledger map[string]int
	blocks []string
	acts   int
}

func (b *bot) handle(logger *log.Logger, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.dims = grid.Dims{
			GridSize:  w.WorldParams.GridSize,
			GridDepth: w.WorldParams.GridDepth,
			ChunkSize: w.WorldParams.ChunkSize,
			TileSize:  w.WorldParams.TileSize,
		}
		for _, r := range w.Blocks {
			if r.Placeable && !r.Structure {
				b.blocks = append(b.blocks, r.ID)
			}
		}
		b.ready = true
		logger.Printf("WELCOME session=%s world=%s chunks=%d seed=%d", w.SessionID, w.WorldID, w.WorldParams.NumChunks, w.WorldParams.Seed)

	case protocol.TypeLedger:
		var l protocol.LedgerMsg
		if err := json.Unmarshal(msg, &l); err == nil {
			b.ledger = l.Resources
		}

	case protocol.TypeResult:
		var r protocol.ResultMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return
		}
		logger.Printf("RESULT %s %s %s at %v %s", r.ActID, r.Action, r.Outcome, r.Cell, r.Reason)

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err == nil {
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}

// next picks a random column and either digs its surface or builds a block the ledger can pay for.
func (b *bot) next() (protocol.ActMsg, bool) {
	if !b.ready {
		return protocol.ActMsg{}, false
	}
	b.acts++
	i, j := b.r.Intn(b.dims.GridSize), b.r.Intn(b.dims.GridSize)
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("bot_%d", b.acts),
		Action:          protocol.ActDig,
		Pointer:         pointerAbove(b.dims, i, j),
	}
	var affordable []string
	for _, id := range b.blocks {
		if b.ledger[id] > 0 {
			affordable = append(affordable, id)
		}
	}
	if len(affordable) > 0 && b.r.Intn(2) == 0 {
		act.Action = protocol.ActBuild
		act.Block = affordable[b.r.Intn(len(affordable))]
	}
	return act, true
}

// pointerAbove is a camera straight above column (i,j) with the pointer at screen center.
func pointerAbove(d grid.Dims, i, j int) *protocol.Pointer {
	target := d.WorldPosition(grid.Cell{I: i, J: j, K: 0})
	top := d.WorldPosition(grid.Cell{I: i, J: j, K: d.GridDepth - 1})
	eye := top.Add(mgl32.Vec3{0, 4 * d.TileSize, 0})
	return &protocol.Pointer{
		NDC:  [2]float32{0, 0},
		View: [16]float32(mgl32.LookAtV(eye, target, mgl32.Vec3{0, 0, -1})),
		Proj: [16]float32(mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 1000)),
	}
}
