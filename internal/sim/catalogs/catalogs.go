// Package catalogs loads the content definitions the generator places:
// ordinary categories (resource nodes) and rare structures. Definition
// files are digested so peers can detect mismatched content sets during
// the handshake; generation order is file order and is part of the
// deterministic contract.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Catalogs struct {
	Categories CategoryCatalog
	Structures StructureCatalog
}

type CategoryCatalog struct {
	Order  []string
	ByID   map[string]CategoryDef
	Digest string
}

type CategoryDef struct {
	ID         string `json:"id"`
	SeedOffset int64  `json:"seed_offset"`
	// BaseTotal is the per-cell target before the density multiplier.
	BaseTotal  int     `json:"base_total"`
	MinSpacing float64 `json:"min_spacing"`

	Density Band        `json:"density"`
	Quality QualityBand `json:"quality"`
	Scale   Band        `json:"scale"`

	Shape       string     `json:"shape"`
	HalfExtents [3]float64 `json:"half_extents"`
	NavRadius   float64    `json:"nav_radius,omitempty"`

	MinAltitude float64 `json:"min_altitude"`
	MaxAltitude float64 `json:"max_altitude"`
	MaxSlope    float64 `json:"max_slope"`
}

type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type QualityBand struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Buckets int     `json:"buckets"`
}

type StructureCatalog struct {
	Order  []string
	ByID   map[string]StructureDef
	Digest string
}

type StructureDef struct {
	ID             string `json:"id"`
	SeedOffset     int64  `json:"seed_offset"`
	ChancePermille int    `json:"chance_permille"`
	// MinOriginCells keeps structures away from the world origin.
	MinOriginCells int             `json:"min_origin_cells"`
	Parts          []StructurePart `json:"parts"`
}

type StructurePart struct {
	Kind        string     `json:"kind"`
	DX          float64    `json:"dx"`
	DZ          float64    `json:"dz"`
	Shape       string     `json:"shape"`
	HalfExtents [3]float64 `json:"half_extents"`
	NavRadius   float64    `json:"nav_radius,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadCategories(filepath.Join(configDir, "categories.json"), &c.Categories); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures.json"), &c.Structures); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadCategories(path string, out *CategoryCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []CategoryDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("categories.json: %w", err)
	}
	out.ByID = map[string]CategoryDef{}
	out.Order = make([]string, 0, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("categories.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("categories.json: duplicate id %q", d.ID)
		}
		if d.BaseTotal < 0 {
			return fmt.Errorf("categories.json: %s: negative base_total", d.ID)
		}
		if d.Quality.Buckets <= 0 {
			d.Quality.Buckets = 1
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadStructures(path string, out *StructureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []StructureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	out.ByID = map[string]StructureDef{}
	out.Order = make([]string, 0, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("structures.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("structures.json: duplicate id %q", d.ID)
		}
		if d.ChancePermille < 0 || d.ChancePermille > 1000 {
			return fmt.Errorf("structures.json: %s: chance_permille out of range", d.ID)
		}
		if len(d.Parts) == 0 {
			return fmt.Errorf("structures.json: %s: no parts", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}
