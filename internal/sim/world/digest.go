package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// stateDigest hashes every finalized placement in loaded cells. Peers
// sharing a seed and observer path compare digests to detect divergence;
// floats go in as raw bits so "close enough" never passes.
func (w *World) stateDigest() string {
	keys := make([]Key, 0, len(w.cells))
	for k, c := range w.cells {
		if c.State == StateLoaded && c.Generated {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})

	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	for _, k := range keys {
		c := w.cells[k]
		writeInt(int64(k.CX))
		writeInt(int64(k.CZ))
		for _, id := range sortedContentIDs(c) {
			e := c.Content[id]
			h.Write([]byte(id))
			h.Write([]byte{0})
			h.Write([]byte(e.Category))
			h.Write([]byte{0})
			h.Write([]byte(e.Kind))
			h.Write([]byte{0})
			writeFloat(e.X)
			writeFloat(e.Y)
			writeFloat(e.Z)
			writeFloat(e.Yaw)
			writeFloat(e.Scale)
			writeFloat(e.Quality)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest is the exported read for tests and offline tools. World
// goroutine only.
func (w *World) StateDigest() string { return w.stateDigest() }
