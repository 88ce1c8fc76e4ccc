package viewerproto

// Version is the viewer stream protocol version.
const Version = "0.1"

// Encoding of TerrainMsg.Data: base64 of unsigned varint (palette index,
// run length) pairs covering the cells row-major. Runs are never zero.
const EncodingPalRLE = "PAL_RLE"

// Client -> Server. First message on the viewer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// SkipTerrain asks the server to leave terrain out of the stream.
	SkipTerrain bool `json:"skip_terrain,omitempty"`
}

// HTTP response for GET /viewer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id,omitempty"`
	MapName         string  `json:"map_name,omitempty"`
	MapSize         [2]int  `json:"map_size"`
	TileSize        float32 `json:"tile_size"`
	GameLoop        uint32  `json:"game_loop"`
	Entities        int     `json:"entities"`
	CatalogDigest   string  `json:"catalog_digest,omitempty"`
}

// Server -> Client. Sent when a game's map becomes known and on connect.
type HelloMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	MapName         string       `json:"map_name"`
	MapSize         [2]int       `json:"map_size"`
	TileSize        float32      `json:"tile_size"`
	PlayableArea    [2][2]int32  `json:"playable_area"` // [[x0,y0],[x1,y1]] in cells
	StartLocations  [][2]float32 `json:"start_locations,omitempty"`
}

// Server -> Client. The full blended terrain.
type TerrainMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	GameLoop        uint32    `json:"game_loop"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Encoding        string    `json:"encoding"`
	Palette         [][3]byte `json:"palette"`
	Data            string    `json:"data"`
}

// Server -> Client. Entity changes for one tick. Full is set on the
// snapshot a new viewer receives.
type EntitiesMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	GameLoop        uint32        `json:"game_loop"`
	Full            bool          `json:"full,omitempty"`
	Upserts         []EntityState `json:"upserts,omitempty"`
	Removes         []uint64      `json:"removes,omitempty"`
}

type EntityState struct {
	Tag      uint64     `json:"tag"`
	TypeID   uint32     `json:"type_id"`
	Name     string     `json:"name"`
	Alliance string     `json:"alliance"`
	Owner    int32      `json:"owner"`
	Pos      [2]float32 `json:"pos"`
	Facing   float32    `json:"facing"`
	Size     float32    `json:"size"`

	Health    float32 `json:"health"`
	HealthMax float32 `json:"health_max"`
	Shield    float32 `json:"shield,omitempty"`
	ShieldMax float32 `json:"shield_max,omitempty"`
	Energy    float32 `json:"energy,omitempty"`
	EnergyMax float32 `json:"energy_max,omitempty"`

	BuildProgress float32 `json:"build_progress"`
	Flying        bool    `json:"flying,omitempty"`
	Order         string  `json:"order,omitempty"`

	Created   bool `json:"created,omitempty"`
	Completed bool `json:"completed,omitempty"`
}

// Server -> Client. The engine reported player results.
type GameEndMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	GameLoop        uint32         `json:"game_loop"`
	Results         []PlayerResult `json:"results"`
}

type PlayerResult struct {
	PlayerID uint32 `json:"player_id"`
	Result   string `json:"result"`
}
