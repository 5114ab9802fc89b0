package main

import (
	"fmt"
	"io"
	"sort"

	"voxelgarden.ai/internal/persistence/indexdb"
	"voxelgarden.ai/internal/sim/growth"
	"voxelgarden.ai/internal/sim/world"
	"voxelgarden.ai/internal/transport/ws"
)

type metricsSources struct {
	World  world.WorldMetrics
	Growth growth.Stats
	Hub    ws.HubStats
	Index  *indexdb.Stats
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(w io.Writer, worldID string, m metricsSources) {
	fmt.Fprintf(w, "# HELP voxelgarden_world_chunks Chunk count.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_world_chunks gauge\n")
	fmt.Fprintf(w, "voxelgarden_world_chunks{world=%q} %d\n", worldID, m.World.Chunks)

	fmt.Fprintf(w, "# HELP voxelgarden_world_mutations_total Mutation attempts by outcome class.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_world_mutations_total counter\n")
	fmt.Fprintf(w, "voxelgarden_world_mutations_total{world=%q,result=%q} %d\n", worldID, "applied", m.World.Applied)
	fmt.Fprintf(w, "voxelgarden_world_mutations_total{world=%q,result=%q} %d\n", worldID, "refused", m.World.Refused)

	fmt.Fprintf(w, "# HELP voxelgarden_world_seq Current mutation sequence.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_world_seq gauge\n")
	fmt.Fprintf(w, "voxelgarden_world_seq{world=%q} %d\n", worldID, m.World.Mutations)

	fmt.Fprintf(w, "# HELP voxelgarden_world_blocks Live instances per block type.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_world_blocks gauge\n")
	for _, b := range sortedKeys(m.World.Totals) {
		fmt.Fprintf(w, "voxelgarden_world_blocks{world=%q,block=%q} %d\n", worldID, b, m.World.Totals[b])
	}

	fmt.Fprintf(w, "# HELP voxelgarden_ledger_resources Player resource counts.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_ledger_resources gauge\n")
	for _, b := range sortedKeys(m.World.Ledger) {
		fmt.Fprintf(w, "voxelgarden_ledger_resources{world=%q,block=%q} %d\n", worldID, b, m.World.Ledger[b])
	}

	fmt.Fprintf(w, "# HELP voxelgarden_growth_ticks_total Growth scheduler steps.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_growth_ticks_total counter\n")
	fmt.Fprintf(w, "voxelgarden_growth_ticks_total{world=%q} %d\n", worldID, m.Growth.Ticks)
	fmt.Fprintf(w, "# HELP voxelgarden_growth_grown_total Blocks placed by growth.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_growth_grown_total counter\n")
	fmt.Fprintf(w, "voxelgarden_growth_grown_total{world=%q} %d\n", worldID, m.Growth.Grown)

	fmt.Fprintf(w, "# HELP voxelgarden_ws_sessions Connected websocket sessions.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_ws_sessions gauge\n")
	fmt.Fprintf(w, "voxelgarden_ws_sessions{world=%q} %d\n", worldID, m.Hub.Sessions)
	fmt.Fprintf(w, "# HELP voxelgarden_ws_chunks_sent_total CHUNK messages queued to sessions.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_ws_chunks_sent_total counter\n")
	fmt.Fprintf(w, "voxelgarden_ws_chunks_sent_total{world=%q} %d\n", worldID, m.Hub.ChunksSent)
	fmt.Fprintf(w, "# HELP voxelgarden_ws_kicked_total Sessions dropped for a full send queue.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_ws_kicked_total counter\n")
	fmt.Fprintf(w, "voxelgarden_ws_kicked_total{world=%q} %d\n", worldID, m.Hub.Kicked)

	if m.Index == nil {
		return
	}
	fmt.Fprintf(w, "# HELP voxelgarden_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_index_queue_depth gauge\n")
	fmt.Fprintf(w, "voxelgarden_index_queue_depth{world=%q} %d\n", worldID, m.Index.QueueDepth)
	fmt.Fprintf(w, "# HELP voxelgarden_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE voxelgarden_index_dropped_total counter\n")
	fmt.Fprintf(w, "voxelgarden_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", m.Index.DropAuditTotal)
	fmt.Fprintf(w, "voxelgarden_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", m.Index.DropSnapshotTotal)
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
