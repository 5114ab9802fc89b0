package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type snapshotRow struct {
	Seq        int64  `json:"seq"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	GridSize   int    `json:"grid_size"`
	GridDepth  int    `json:"grid_depth"`
	Chunks     int    `json:"chunks"`
	Instances  int    `json:"instances"`
	RecordedAt string `json:"recorded_at"`
}

type auditRow struct {
	Seq     int64  `json:"seq"`
	UnixMs  int64  `json:"unix_ms"`
	Actor   string `json:"actor"`
	Action  string `json:"action"`
	Block   string `json:"block"`
	Pos     [3]int `json:"pos"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

type auditFilter struct {
	Actor   string
	Outcome string
	Cell    *[3]int
	Limit   int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor filter (audits)")
	outcome := fs.String("outcome", "", "outcome filter (audits)")
	cellStr := fs.String("cell", "", "cell filter i,j,k (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		rows, err := querySnapshots(db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "audits":
		f := auditFilter{Actor: strings.TrimSpace(*actor), Outcome: strings.TrimSpace(*outcome), Limit: *limit}
		if s := strings.TrimSpace(*cellStr); s != "" {
			c, err := parseVec3(s)
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad -cell:", err)
				os.Exit(2)
			}
			f.Cell = &c
		}
		rows, err := queryAudits(db, f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "outcomes":
		counts, err := countOutcomes(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printJSON(counts)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|audits|outcomes)")
		os.Exit(2)
	}
}

func querySnapshots(db *sql.DB, limit int) ([]snapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT seq,path,seed,grid_size,grid_depth,chunks,instances,recorded_at FROM snapshots ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshotRow
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.Seq, &r.Path, &r.Seed, &r.GridSize, &r.GridDepth, &r.Chunks, &r.Instances, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// queryAudits returns matching audit rows, newest first.
func queryAudits(db *sql.DB, f auditFilter) ([]auditRow, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	var (
		where []string
		args  []any
	)
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.Cell != nil {
		where = append(where, "i = ? AND j = ? AND k = ?")
		args = append(args, f.Cell[0], f.Cell[1], f.Cell[2])
	}
	q := `SELECT seq,unix_ms,actor,action,block,i,j,k,outcome,COALESCE(reason,''),added,removed FROM audits`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auditRow
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(&r.Seq, &r.UnixMs, &r.Actor, &r.Action, &r.Block, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Outcome, &r.Reason, &r.Added, &r.Removed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func countOutcomes(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT outcome, COUNT(*) FROM audits GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
