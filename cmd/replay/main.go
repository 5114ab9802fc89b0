package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "voxelgarden.ai/internal/persistence/log"
	"voxelgarden.ai/internal/persistence/snapshot"
	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		auditDir  = flag.String("audit", "", "audit dir containing audit-*.jsonl.zst (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		toSeq     = flag.Uint64("to_seq", 0, "stop after this mutation sequence (inclusive, optional)")
		outPath   = flag.String("out", "", "write the replayed world as a snapshot (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s seq=%d seed=%d grid=%dx%dx%d chunks=%d instances=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Seq, snap.Seed,
		snap.GridSize, snap.GridSize, snap.GridDepth, len(snap.Chunks), snap.Instances())

	if *auditDir == "" {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	w, err := world.ImportSnapshot(snap, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	files, err := listAuditFiles(*auditDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no audit files found in", *auditDir)
		os.Exit(1)
	}

	var checked int
	for _, path := range files {
		n, done, err := replayFile(w, path, *toSeq)
		checked += n
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if done {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d mutations (snapshot seq=%d, now seq=%d)\n", checked, snap.Header.Seq, w.MutationSeq())

	if *outPath != "" {
		if err := snapshot.WriteSnapshot(*outPath, w.ExportSnapshot()); err != nil {
			fmt.Fprintln(os.Stderr, "write snapshot:", err)
			os.Exit(1)
		}
		fmt.Println("wrote", *outPath)
	}
}

// listAuditFiles returns audit files in hour order; the names sort chronologically.
func listAuditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// replayFile applies every entry newer than the world's sequence. done reports that toSeq was reached.
func replayFile(w *world.World, path string, toSeq uint64) (checked int, done bool, err error) {
	entries, err := persistlog.ReadAudit(path)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.Seq <= w.MutationSeq() {
			continue
		}
		if toSeq != 0 && e.Seq > toSeq {
			return checked, true, nil
		}
		if _, err := w.Replay(e); err != nil {
			return checked, false, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		checked++
	}
	return checked, false, nil
}
