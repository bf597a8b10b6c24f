// Package snapshot serializes a point-in-time view of the region table to a
// compact on-disk format: a fixed binary header, a snappy-compressed JSON
// payload, and a CRC32C footer covering everything before it.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"time"

	"github.com/golang/snappy"

	"github.com/regia-io/regia/internal/heap"
)

const (
	// Magic identifies a snapshot file.
	Magic = uint32(0x52474E53) // "RGNS"

	// Version is the current snapshot format version.
	Version = uint16(1)

	// HeaderSize is magic(4) + version(2) + reserved(2) + payloadLen(4).
	HeaderSize = 12

	// FooterSize is the CRC32C trailer.
	FooterSize = 4
)

var (
	ErrBadMagic    = errors.New("snapshot: bad magic")
	ErrBadVersion  = errors.New("snapshot: unsupported version")
	ErrBadChecksum = errors.New("snapshot: checksum mismatch")
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// RegionRecord is the serialized state of one region.
type RegionRecord struct {
	Index       uint32 `json:"index"`
	Kind        string `json:"kind"`
	UsedBytes   uint64 `json:"usedBytes"`
	LiveBytes   uint64 `json:"liveBytes"`
	RemSetCards uint64 `json:"remsetCards"`
	EvacFailed  bool   `json:"evacFailed,omitempty"`
	InCSet      bool   `json:"inCset,omitempty"`
}

// Snapshot is a point-in-time view of the heap.
type Snapshot struct {
	PauseID     string         `json:"pauseId"`
	TakenAt     time.Time      `json:"takenAt"`
	NumRegions  uint32         `json:"numRegions"`
	RegionBytes uint64         `json:"regionBytes"`
	UsedBytes   uint64         `json:"usedBytes"`
	FreeRegions int            `json:"freeRegions"`
	Regions     []RegionRecord `json:"regions"`
}

// Capture builds a snapshot from the current region table. Free regions are
// omitted from the per-region records; only the count is kept.
func Capture(hm *heap.Manager, pauseID string) *Snapshot {
	snap := &Snapshot{
		PauseID:     pauseID,
		TakenAt:     time.Now().UTC(),
		NumRegions:  hm.NumRegions(),
		RegionBytes: hm.RegionBytes(),
		UsedBytes:   hm.UsedBytes(),
		FreeRegions: hm.FreeListLength(),
	}
	for idx := uint32(0); idx < hm.NumRegions(); idx++ {
		r := hm.RegionAt(idx)
		if r.IsFree() {
			continue
		}
		snap.Regions = append(snap.Regions, RegionRecord{
			Index:       r.Index(),
			Kind:        r.Kind().String(),
			UsedBytes:   r.Used(),
			LiveBytes:   r.LiveBytes(),
			RemSetCards: r.RemSet().Occupied(),
			EvacFailed:  r.EvacuationFailed(),
			InCSet:      r.InCollectionSet(),
		})
	}
	return snap
}

// Write serializes the snapshot to w. Returns the total bytes written.
func Write(w io.Writer, snap *Snapshot) (int64, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	compressed := snappy.Encode(nil, payload)

	buf := make([]byte, HeaderSize+len(compressed)+FooterSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	// buf[6:8] reserved
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(compressed)))
	copy(buf[HeaderSize:], compressed)

	crc := crc32.Checksum(buf[:HeaderSize+len(compressed)], crc32cTable)
	binary.BigEndian.PutUint32(buf[HeaderSize+len(compressed):], crc)

	n, err := w.Write(buf)
	return int64(n), err
}

// WriteFile serializes the snapshot to the given path.
func WriteFile(path string, snap *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if _, err := Write(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read deserializes a snapshot from r, validating magic, version and
// checksum.
func Read(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("snapshot: truncated input of %d bytes", len(data))
	}

	if binary.BigEndian.Uint32(data[0:4]) != Magic {
		return nil, ErrBadMagic
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	payloadLen := int(binary.BigEndian.Uint32(data[8:12]))
	if HeaderSize+payloadLen+FooterSize != len(data) {
		return nil, fmt.Errorf("snapshot: payload length %d does not match input size %d", payloadLen, len(data))
	}

	crcOffset := HeaderSize + payloadLen
	want := binary.BigEndian.Uint32(data[crcOffset:])
	if got := crc32.Checksum(data[:crcOffset], crc32cTable); got != want {
		return nil, ErrBadChecksum
	}

	payload, err := snappy.Decode(nil, data[HeaderSize:crcOffset])
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ReadFile deserializes a snapshot from the given path.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
