package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelgarden.ai/internal/protocol"
	"voxelgarden.ai/internal/sim/grid"
	"voxelgarden.ai/internal/sim/interact"
	"voxelgarden.ai/internal/sim/world"
)

var errUnknownChunk = errors.New("unknown chunk index")

type Server struct {
	world    *world.World
	resolver *interact.Resolver
	hub      *Hub
	log      *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, hub *Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world:    w,
		resolver: interact.NewResolver(w),
		hub:      hub,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer s.hub.remove(sess.id)
		if !s.hub.join(sess) {
			return
		}
		s.log.Printf("session %s joined", sess.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-sess.done:
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(time.Second))
					_ = conn.Close()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handleMessage(msg)
			if reply == nil {
				continue
			}
			b, err := json.Marshal(reply)
			if err != nil {
				s.log.Printf("encode reply: %v", err)
				continue
			}
			if !sess.send(b) {
				break
			}
		}
		s.log.Printf("session %s left", sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	// Room for a full world resync plus ledger and replies.
	maxQ := hello.MaxQueue
	if need := s.world.NumChunks() + 8; maxQ < need {
		maxQ = need
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	sess := newSession(uuid.NewString(), maxQ)

	// The initial render tables follow through the session queue (Hub.join).
	if err := writeJSON(conn, s.welcome(sess.id)); err != nil {
		return nil
	}
	return sess
}

func (s *Server) welcome(sessionID string) protocol.WelcomeMsg {
	cfg := s.world.Config()
	cats := s.world.Catalogs()
	m := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		WorldParams: protocol.WorldParams{
			GridSize:  cfg.GridSize,
			GridDepth: cfg.GridDepth,
			ChunkSize: cfg.ChunkSize,
			NumChunks: s.world.NumChunks(),
			TileSize:  cfg.TileSize,
			Seed:      cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(cats.Blocks.Palette)},
			BlockDefs:    cats.Blocks.DefsDigest,
			Trees:        cats.Trees.Digest,
		},
		Trees:  make([]string, 0, len(cats.Trees.Templates)),
		Ledger: s.world.Ledger(),
	}
	for _, id := range cats.Blocks.Palette {
		d := cats.Blocks.Defs[id]
		floor, limited := d.DigFloor()
		if !limited {
			floor = -1
		}
		m.Blocks = append(m.Blocks, protocol.BlockRule{
			ID:                 d.ID,
			Tool:               d.Tool,
			Yield:              d.Yield,
			MinRemainingBlocks: floor,
			Breakable:          d.Breakable,
			Placeable:          d.Placeable,
			Structure:          d.Structure,
		})
	}
	for _, tt := range cats.Trees.Templates {
		m.Trees = append(m.Trees, tt.ID)
	}
	sort.Strings(m.Trees)
	return m
}

// handleMessage answers one inbound frame. Anything other than a well-formed ACT gets an ERROR.
func (s *Server) handleMessage(msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return errorMsg(protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.Type != protocol.TypeAct {
		return errorMsg(protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type))
	}
	var act protocol.ActMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		return errorMsg(protocol.ErrProtoBadRequest, "malformed ACT")
	}
	if act.ProtocolVersion != protocol.Version {
		return errorMsg(protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	return s.handleAct(act)
}

func (s *Server) handleAct(act protocol.ActMsg) any {
	if (act.Pointer == nil) == (act.Cell == nil) {
		return errorMsg(protocol.ErrBadRequest, "exactly one of pointer or cell is required")
	}

	var ray interact.Ray
	if act.Pointer != nil {
		r, ok := interact.RayFromNDC(mgl32.Vec2(act.Pointer.NDC), mgl32.Mat4(act.Pointer.View), mgl32.Mat4(act.Pointer.Proj))
		if !ok {
			return resultMsg(act, world.Result{Outcome: world.RefusedNoHit, Reason: "singular camera"})
		}
		ray = r
	}

	switch act.Action {
	case protocol.ActDig:
		if act.Cell != nil {
			return resultMsg(act, s.world.Dig(world.ActorPlayer, grid.CellFromArray(*act.Cell)))
		}
		return resultMsg(act, s.resolver.Dig(world.ActorPlayer, ray))
	case protocol.ActBuild:
		if act.Cell != nil {
			return resultMsg(act, s.world.Build(world.ActorPlayer, act.Block, grid.CellFromArray(*act.Cell)))
		}
		return resultMsg(act, s.resolver.Build(world.ActorPlayer, act.Block, ray))
	case protocol.ActPreview:
		mode := interact.ModeDig
		switch act.Mode {
		case protocol.ActDig, "":
		case protocol.ActBuild:
			mode = interact.ModeBuild
		default:
			return errorMsg(protocol.ErrBadRequest, fmt.Sprintf("unknown preview mode %q", act.Mode))
		}
		var p interact.Preview
		if act.Cell != nil {
			p = s.resolver.PreviewCell(mode, act.Block, grid.CellFromArray(*act.Cell))
		} else {
			p = s.resolver.Preview(mode, act.Block, ray)
		}
		return previewMsg(act, p)
	default:
		return errorMsg(protocol.ErrBadRequest, fmt.Sprintf("unknown action %q", act.Action))
	}
}

func resultMsg(act protocol.ActMsg, res world.Result) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ActID:           act.ID,
		Action:          act.Action,
		Outcome:         string(res.Outcome),
		Code:            protocol.CodeForOutcome(string(res.Outcome)),
		Reason:          res.Reason,
		Block:           res.Block,
		Cell:            res.Cell.Array(),
		Template:        res.Template,
		Added:           res.Added,
		Removed:         res.Removed,
		Credited:        res.Credited,
	}
}

func previewMsg(act protocol.ActMsg, p interact.Preview) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ActID:           act.ID,
		Action:          act.Action,
		Outcome:         string(p.Outcome),
		Code:            protocol.CodeForOutcome(string(p.Outcome)),
		Reason:          p.Reason,
		Block:           p.Block,
		Cell:            p.Target.Cell.Array(),
		Allowed:         p.Allowed,
		Tool:            p.Tool,
		Position:        [3]float32(p.Position),
	}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
