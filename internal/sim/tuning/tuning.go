// Package tuning holds the numeric knobs for a node, loaded once at
// startup from yaml. Values that peers must agree on (seed, cell size,
// catalog digests) travel in the handshake; everything else is local.
package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`
	WorldID         string `yaml:"world_id"`
	Seed            int64  `yaml:"seed"`

	Frame     Frame     `yaml:"frame"`
	Scheduler Scheduler `yaml:"scheduler"`
	World     World     `yaml:"world"`
	Populate  Populate  `yaml:"populate"`
	Terrain   Terrain   `yaml:"terrain"`
}

type Frame struct {
	RateHz            int `yaml:"rate_hz"`
	BudgetMs          int `yaml:"budget_ms"`
	EmergencyBudgetMs int `yaml:"emergency_budget_ms"`
}

type Scheduler struct {
	EmergencyPending    int            `yaml:"emergency_pending"`
	DefaultKindBudgetMs int            `yaml:"default_kind_budget_ms"`
	KindBudgetMs        map[string]int `yaml:"kind_budget_ms"`
}

type World struct {
	CellSize            float64 `yaml:"cell_size"`
	LoadRadius          int     `yaml:"load_radius"`
	KeepMargin          int     `yaml:"keep_margin"`
	CreationAlignWeight float64 `yaml:"creation_align_weight"`
	DisposalIntervalMs  int     `yaml:"disposal_interval_ms"`
	DisposalBatch       int     `yaml:"disposal_batch"`
	StateEveryFrames    int     `yaml:"state_every_frames"`
}

type Populate struct {
	BatchCandidates int `yaml:"batch_candidates"`
	MaxTries        int `yaml:"max_tries"`
	NeighborRing    int `yaml:"neighbor_ring"`
}

type Terrain struct {
	Amplitude  float64 `yaml:"amplitude"`
	Frequency  float64 `yaml:"frequency"`
	Octaves    int     `yaml:"octaves"`
	WaterLevel float64 `yaml:"water_level"`
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Default() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		WorldID:         "overworld",
		Seed:            1337,
		Frame: Frame{
			RateHz:            30,
			BudgetMs:          6,
			EmergencyBudgetMs: 24,
		},
		Scheduler: Scheduler{
			EmergencyPending:    256,
			DefaultKindBudgetMs: 2,
			KindBudgetMs: map[string]int{
				"scene":      2,
				"physics":    2,
				"navigation": 1,
				"generate":   3,
				"teardown":   1,
				"broadcast":  1,
			},
		},
		World: World{
			CellSize:            64,
			LoadRadius:          2,
			KeepMargin:          1,
			CreationAlignWeight: 2.0,
			DisposalIntervalMs:  250,
			DisposalBatch:       4,
			StateEveryFrames:    150,
		},
		Populate: Populate{
			BatchCandidates: 12,
			MaxTries:        8,
			NeighborRing:    1,
		},
		Terrain: Terrain{
			Amplitude:  24,
			Frequency:  0.004,
			Octaves:    4,
			WaterLevel: 0,
		},
	}
}

func (t Tuning) FrameInterval() time.Duration {
	hz := t.Frame.RateHz
	if hz <= 0 {
		hz = 30
	}
	return time.Second / time.Duration(hz)
}

func (t Tuning) FrameBudget() time.Duration {
	return time.Duration(t.Frame.BudgetMs) * time.Millisecond
}

func (t Tuning) EmergencyBudget() time.Duration {
	return time.Duration(t.Frame.EmergencyBudgetMs) * time.Millisecond
}

func (t Tuning) DisposalInterval() time.Duration {
	return time.Duration(t.World.DisposalIntervalMs) * time.Millisecond
}
