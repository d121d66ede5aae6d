package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/collin2985/chunkstream/internal/nav"
	"github.com/collin2985/chunkstream/internal/persistence/indexdb"
	"github.com/collin2985/chunkstream/internal/persistence/journal"
	"github.com/collin2985/chunkstream/internal/physics"
	"github.com/collin2985/chunkstream/internal/protocol"
	"github.com/collin2985/chunkstream/internal/scene"
	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/sim/tuning"
	"github.com/collin2985/chunkstream/internal/sim/world"
	"github.com/collin2985/chunkstream/internal/terrain"
	"github.com/collin2985/chunkstream/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "", "world id (default: from tuning.yaml)")
		seed       = flag.Int64("seed", 0, "world seed override (default: from tuning.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		peerList   = flag.String("peers", "", "comma-separated peer websocket urls to dial")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (tombstones will not survive restarts)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *worldID != "" {
		tune.WorldID = *worldID
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version %q, binary speaks %q", tune.ProtocolVersion, protocol.Version)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.WorldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Index DB: placements/tombstones/frames. Tombstones reload here so
	// removals survive restarts.
	var idx *indexdb.SQLiteIndex
	var stones map[[2]int][]string
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.db"), tune.WorldID, tune.Seed)
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		stones, err = idx.LoadTombstones()
		if err != nil {
			logger.Fatalf("load tombstones: %v", err)
		}
		logger.Printf("index db open, %d cells carry tombstones", len(stones))
	}

	events := journal.NewEventLog(worldDir)
	defer events.Close()

	peerID := uuid.NewString()
	cfg := worldConfig(tune, peerID)

	// The gateway needs the world for inbound routing and the world needs
	// the gateway for outbound broadcasts; the sink breaks the cycle.
	sink := &netSink{}

	deps := world.Deps{
		Terrain: terrain.NewPerlin(terrain.Config{
			Seed:      tune.Seed,
			Amplitude: tune.Terrain.Amplitude,
			Frequency: tune.Terrain.Frequency,
			Octaves:   tune.Terrain.Octaves,
		}),
		Physics: physics.NewSpace(tune.World.CellSize / 4),
		Nav:     nav.NewRegistry(),
		Scene:   scene.NewRegistry(),
		Net:     sink,
		Journal: events,
		Log:     log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
	}
	if idx != nil {
		deps.Index = idx
	}

	w := world.New(cfg, cats, deps)
	if len(stones) > 0 {
		w.SeedTombstones(stones)
	}

	gw := ws.NewGateway(w, ws.Params{
		PeerName: peerID,
		WorldID:  tune.WorldID,
		WorldParams: protocol.WorldParams{
			Seed:        tune.Seed,
			CellSize:    tune.World.CellSize,
			LoadRadius:  tune.World.LoadRadius,
			FrameRateHz: tune.Frame.RateHz,
			Terrain: protocol.TerrainParams{
				Amplitude:  tune.Terrain.Amplitude,
				Frequency:  tune.Terrain.Frequency,
				Octaves:    tune.Terrain.Octaves,
				WaterLevel: tune.Terrain.WaterLevel,
			},
		},
		Catalogs: protocol.CatalogDigests{
			CategoriesDigest: cats.Categories.Digest,
			StructuresDigest: cats.Structures.Digest,
		},
	}, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	sink.gw = gw
	defer gw.Close()

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	for _, u := range strings.Split(*peerList, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if err := gw.Dial(u); err != nil {
			logger.Printf("peer %s: %v", u, err)
			continue
		}
		logger.Printf("peered with %s", u)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", gw.Handler())
	mux.HandleFunc("/v1/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID      string        `json:"world_id"`
			PeerID       string        `json:"peer_id"`
			World        world.Metrics `json:"world"`
			Peers        int           `json:"peers"`
			SendDropped  uint64        `json:"send_dropped"`
			IndexDropped uint64        `json:"index_dropped"`
		}{
			WorldID:      tune.WorldID,
			PeerID:       peerID,
			World:        w.MetricsSnapshot(),
			Peers:        gw.PeerCount(),
			SendDropped:  gw.Dropped(),
			IndexDropped: idx.Dropped(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/v1/observer", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			X float64 `json:"x"`
			Z float64 `json:"z"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(rw, "bad body", http.StatusBadRequest)
			return
		}
		select {
		case w.Moves() <- world.ObserverMove{X: body.X, Z: body.Z}:
			rw.WriteHeader(http.StatusAccepted)
		default:
			// Move channel full: the latest position wins anyway.
			rw.WriteHeader(http.StatusAccepted)
		}
	})
	if envBool("CS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

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

	logger.Printf("world %s seed %d peer %s listening on %s", tune.WorldID, tune.Seed, peerID, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func worldConfig(tune tuning.Tuning, peerID string) world.Config {
	kindBudget := make(map[string]time.Duration, len(tune.Scheduler.KindBudgetMs))
	for k, ms := range tune.Scheduler.KindBudgetMs {
		kindBudget[k] = time.Duration(ms) * time.Millisecond
	}
	return world.Config{
		WorldID: tune.WorldID,
		Seed:    tune.Seed,
		PeerID:  peerID,

		CellSize:    tune.World.CellSize,
		LoadRadius:  tune.World.LoadRadius,
		KeepMargin:  tune.World.KeepMargin,
		AlignWeight: tune.World.CreationAlignWeight,

		DisposalInterval: tune.DisposalInterval(),
		DisposalBatch:    tune.World.DisposalBatch,
		StateEveryFrames: tune.World.StateEveryFrames,

		FrameRateHz:     tune.Frame.RateHz,
		FrameBudget:     tune.FrameBudget(),
		EmergencyBudget: tune.EmergencyBudget(),

		BatchCandidates: tune.Populate.BatchCandidates,
		MaxTries:        tune.Populate.MaxTries,
		NeighborRing:    tune.Populate.NeighborRing,

		KindBudget:        kindBudget,
		DefaultKindBudget: time.Duration(tune.Scheduler.DefaultKindBudgetMs) * time.Millisecond,
		EmergencyPending:  tune.Scheduler.EmergencyPending,
	}
}

// netSink forwards world broadcasts to the gateway once it exists.
type netSink struct{ gw *ws.Gateway }

func (n *netSink) Send(msgType string, payload []byte) {
	if n.gw != nil {
		n.gw.Send(msgType, payload)
	}
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

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
