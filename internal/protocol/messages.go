package protocol

// HELLO (connecting peer -> host)
type HelloMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	PeerName        string         `json:"peer_name"`
	WorldID         string         `json:"world_id,omitempty"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

// WELCOME (host -> connecting peer)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	PeerID          string         `json:"peer_id"`
	WorldID         string         `json:"world_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

// WorldParams carries everything placement determinism depends on. A peer
// whose own values differ must not apply or send placements.
type WorldParams struct {
	Seed        int64         `json:"seed"`
	CellSize    float64       `json:"cell_size"`
	LoadRadius  int           `json:"load_radius"`
	FrameRateHz int           `json:"frame_rate_hz"`
	Terrain     TerrainParams `json:"terrain"`
}

type TerrainParams struct {
	Amplitude  float64 `json:"amplitude"`
	Frequency  float64 `json:"frequency"`
	Octaves    int     `json:"octaves"`
	WaterLevel float64 `json:"water_level"`
}

type CatalogDigests struct {
	CategoriesDigest string `json:"categories_digest"`
	StructuresDigest string `json:"structures_digest"`
}

// PLACE (any peer -> all): finalized placements for one cell.
type PlaceMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	PeerID          string           `json:"peer_id"`
	Cell            [2]int           `json:"cell"`
	Entries         []PlacementEntry `json:"entries"`
}

type PlacementEntry struct {
	ID       string     `json:"id"`
	Category string     `json:"category"`
	Kind     string     `json:"kind,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Yaw      float64    `json:"yaw"`
	Scale    float64    `json:"scale"`
	Quality  float64    `json:"quality"`
}

// REMOVE (any peer -> all): a content id was removed; receivers tombstone
// it so regeneration does not bring it back.
type RemoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PeerID          string `json:"peer_id"`
	ID              string `json:"id"`
	Cell            [2]int `json:"cell"`
}

// ERROR (host -> peer): handshake rejection or a dropped message. Sent
// best-effort; the sender never waits on it.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// STATE (periodic parity probe): peers sharing a seed and observer path
// can compare digests to detect divergence.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PeerID          string `json:"peer_id"`
	Frame           uint64 `json:"frame"`
	CellsLoaded     int    `json:"cells_loaded"`
	ContentCount    int    `json:"content_count"`
	Digest          string `json:"digest"`
}
