package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	// Seq is the world mutation sequence at export time.
	Seq    uint64 `json:"seq"`
	UnixMs int64  `json:"unix_ms"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      int64   `json:"seed"`
	GridSize  int     `json:"grid_size"`
	GridDepth int     `json:"grid_depth"`
	SoilDepth int     `json:"soil_depth"`
	AirDepth  int     `json:"air_depth"`
	TileSize  float32 `json:"tile_size"`
	ChunkSize [3]int  `json:"chunk_size"`

	// PaletteDigest pins the block catalog the instance tables were written against.
	PaletteDigest string `json:"palette_digest"`

	Ledger map[string]int `json:"ledger"`
	Chunks []ChunkV1      `json:"chunks"`
}

// ChunkV1 stores each instance table as its slot-ordered coordinate list. Transforms are
// derived from coordinates on import.
type ChunkV1 struct {
	Index  int       `json:"index"`
	Tables []TableV1 `json:"tables"`
}

type TableV1 struct {
	Block string   `json:"block"`
	Cells [][3]int `json:"cells"`
}

// Instances counts every stored instance in the snapshot.
func (s SnapshotV1) Instances() int {
	n := 0
	for _, c := range s.Chunks {
		for _, t := range c.Tables {
			n += len(t.Cells)
		}
	}
	return n
}

// WriteSnapshot writes a zstd stream holding a JSON header line followed by the gob body.
// The file is written beside path and renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
