package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "voxelgarden.ai/internal/persistence/log"
	"voxelgarden.ai/internal/persistence/snapshot"
	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/growth"
	"voxelgarden.ai/internal/sim/tuning"
	"voxelgarden.ai/internal/sim/world"
	"voxelgarden.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "world seed override (fresh worlds only; 0 uses tuning.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite audit/snapshot index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resume only needs its growth and shutdown settings.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		// Before any audit traffic: the index has a single connection.
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := loadWorld(*worldID, snapshotToLoad, tune, cats, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	hub := ws.NewHub(w, 50*time.Millisecond, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer auditLog.Close()
	sinks := multiAuditLogger{auditLog, hub}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	w.SetAuditLogger(sinks)

	go hub.Run(ctx)

	grower := growth.New(w, growth.Config{
		Interval: time.Duration(tune.Growth.IntervalMs) * time.Millisecond,
		MaxPct:   tune.Growth.MaxPct,
		Source:   tune.Growth.Source,
		Grows:    tune.Growth.Grows,
	}, rand.New(rand.NewSource(w.Config().Seed+1)), log.New(os.Stdout, "[growth] ", log.LstdFlags|log.Lmicroseconds))
	go func() {
		if err := grower.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("growth stopped: %v", err)
		}
	}()

	writeSnap := func() (string, error) {
		snap := w.ExportSnapshot()
		path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Seq))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return "", err
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		return path, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		ms := metricsSources{World: w.Metrics(), Growth: grower.Stats(), Hub: hub.Stats()}
		if idx != nil {
			st := idx.Stats()
			ms.Index = &st
		}
		writeMetrics(rw, *worldID, ms)
	})

	if envBool("VG_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Seq     uint64             `json:"seq"`
				Metrics world.WorldMetrics `json:"metrics"`
				Growth  growth.Stats       `json:"growth"`
				Hub     ws.HubStats        `json:"hub"`
			}{
				WorldID: *worldID,
				Seq:     w.MutationSeq(),
				Metrics: w.Metrics(),
				Growth:  grower.Stats(),
				Hub:     hub.Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			path, err := writeSnap()
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
		})
	} else {
		logger.Printf("admin endpoints disabled (VG_ENABLE_ADMIN_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, hub, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s chunks=%d seq=%d", *addr, *worldID, w.NumChunks(), w.MutationSeq())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	grower.Stop()
	if tune.SnapshotOnExit {
		if path, err := writeSnap(); err != nil {
			logger.Printf("snapshot on exit: %v", err)
		} else {
			logger.Printf("snapshot written: %s", path)
		}
	}
}

// loadWorld resumes from snapshotPath when set, otherwise creates and populates a fresh world.
func loadWorld(worldID, snapshotPath string, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (*world.World, error) {
	if snapshotPath != "" {
		snap, err := snapshot.ReadSnapshot(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
			return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", worldID, snap.Header.WorldID)
		}
		w, err := world.ImportSnapshot(snap, cats)
		if err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		logger.Printf("resumed from snapshot=%s seq=%d", filepath.Base(snapshotPath), w.MutationSeq())
		return w, nil
	}

	w, err := world.New(world.WorldConfig{
		ID:                worldID,
		GridSize:          tune.GridSize,
		GridDepth:         tune.GridDepth,
		SoilDepth:         tune.SoilDepth,
		AirDepth:          tune.AirDepth,
		TileSize:          tune.TileSize,
		ChunkSize:         tune.ChunkSize3(),
		Seed:              tune.Seed,
		SeedTree:          tune.SeedTreeEnabled(),
		ClearOnStart:      tune.ClearOnStart,
		StartingResources: tune.StartingResources,
	}, cats)
	if err != nil {
		return nil, err
	}
	rep, err := w.Populate()
	if err != nil {
		return nil, fmt.Errorf("populate: %w", err)
	}
	logger.Printf("populated seed=%d filled=%v cleared=%v tree=%s/%s added=%d",
		tune.Seed, rep.Filled, rep.Cleared, rep.Tree.Template, rep.Tree.Outcome, rep.Tree.Added)
	return w, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot returns the snapshot with the highest mutation sequence, or "".
func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// multiAuditLogger fans one entry out to every sink. A failing sink does not stop the
// others; the joined error goes back to the world, which logs it.
type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteAudit(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
