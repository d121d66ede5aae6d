// Command probe generates a neighborhood of cells offline and prints every
// placement plus the world digest. Two machines given the same seed,
// catalogs, and terrain parameters must print byte-identical output; any
// difference means the nodes would diverge in production.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/collin2985/chunkstream/internal/nav"
	"github.com/collin2985/chunkstream/internal/physics"
	"github.com/collin2985/chunkstream/internal/scene"
	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/sim/tuning"
	"github.com/collin2985/chunkstream/internal/sim/world"
	"github.com/collin2985/chunkstream/internal/terrain"
)

func main() {
	var (
		seed        = flag.Int64("seed", 0, "world seed override (default: from tuning.yaml)")
		configDir   = flag.String("configs", "./configs", "config directory")
		cx          = flag.Int("cx", 0, "observer cell x")
		cz          = flag.Int("cz", 0, "observer cell z")
		radius      = flag.Int("radius", 1, "load radius")
		terrainKind = flag.String("terrain", "perlin", "terrain sampler: perlin or flat")
		flatHeight  = flag.Float64("flat_height", 10, "height for -terrain flat")
		maxFrames   = flag.Int("max_frames", 100000, "abort if generation does not settle")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[probe] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	var sampler world.Terrain
	switch strings.ToLower(*terrainKind) {
	case "perlin":
		sampler = terrain.NewPerlin(terrain.Config{
			Seed:      tune.Seed,
			Amplitude: tune.Terrain.Amplitude,
			Frequency: tune.Terrain.Frequency,
			Octaves:   tune.Terrain.Octaves,
		})
	case "flat":
		sampler = terrain.Flat{Height: *flatHeight}
	default:
		logger.Fatalf("unknown terrain %q", *terrainKind)
	}

	// Frozen clock: every frame sees a full budget, so generation settles
	// in as few synthetic frames as possible and wall-clock speed of the
	// host machine cannot influence the result.
	epoch := time.Unix(0, 0)
	w := world.New(world.Config{
		WorldID:          tune.WorldID,
		Seed:             tune.Seed,
		CellSize:         tune.World.CellSize,
		LoadRadius:       *radius,
		DisposalInterval: time.Hour,
		StateEveryFrames: 1 << 30,
		BatchCandidates:  tune.Populate.BatchCandidates,
		MaxTries:         tune.Populate.MaxTries,
		NeighborRing:     tune.Populate.NeighborRing,
		Now:              func() time.Time { return epoch },
	}, cats, world.Deps{
		Terrain: sampler,
		Physics: physics.NewSpace(tune.World.CellSize / 4),
		Nav:     nav.NewRegistry(),
		Scene:   scene.NewRegistry(),
		Log:     logger,
	})

	obsX := (float64(*cx) + 0.5) * tune.World.CellSize
	obsZ := (float64(*cz) + 0.5) * tune.World.CellSize
	w.FrameOnce(world.FrameInput{Move: &world.ObserverMove{X: obsX, Z: obsZ}})

	frames := 1
	for ; frames < *maxFrames; frames++ {
		if !w.Generating() && settled(w, *cx, *cz, *radius) {
			break
		}
		w.FrameOnce(world.FrameInput{})
	}
	if frames >= *maxFrames {
		logger.Fatalf("generation did not settle within %d frames", *maxFrames)
	}

	total := 0
	for dz := -*radius; dz <= *radius; dz++ {
		for dx := -*radius; dx <= *radius; dx++ {
			k := world.Key{CX: *cx + dx, CZ: *cz + dz}
			rows := w.CellPlacements(k)
			fmt.Printf("cell %d,%d (%d placements)\n", k.CX, k.CZ, len(rows))
			for _, r := range rows {
				kind := r.Kind
				if kind == "" {
					kind = "-"
				}
				fmt.Printf("  %s %s %s x=%.6f y=%.6f z=%.6f yaw=%.6f scale=%.6f quality=%.6f\n",
					r.ID, r.Category, kind, r.X, r.Y, r.Z, r.Yaw, r.Scale, r.Quality)
			}
			total += len(rows)
		}
	}
	fmt.Printf("seed=%d cells=%d placements=%d frames=%d\n",
		tune.Seed, (2**radius+1)*(2**radius+1), total, frames)
	fmt.Printf("digest=%s\n", w.StateDigest())
}

func settled(w *world.World, cx, cz, radius int) bool {
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			if w.CellState(world.Key{CX: cx + dx, CZ: cz + dz}) != world.StateLoaded {
				return false
			}
		}
	}
	return true
}
