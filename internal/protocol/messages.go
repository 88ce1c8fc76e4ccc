package protocol

// Request is a decoded bot -> engine frame.
type Request struct {
	ID   uint32
	Kind Kind

	CreateGame  *RequestCreateGame
	Observation *RequestObservation
	Step        *RequestStep

	// Body holds the raw oneof payload for kinds without a typed model.
	Body []byte
}

type RequestCreateGame struct {
	BattlenetMapName string
	LocalMap         *LocalMap
	PlayerSetup      []PlayerSetup
	DisableFog       bool
	RandomSeed       uint32
	HasRandomSeed    bool
	Realtime         bool
}

type LocalMap struct {
	MapPath string
	MapData []byte
}

type PlayerSetup struct {
	Type       PlayerType
	Race       Race
	Difficulty Difficulty
	PlayerName string
}

type RequestObservation struct {
	DisableFog bool
	GameLoop   uint32
}

type RequestStep struct {
	Count uint32
}

// Response is a decoded engine -> bot frame.
type Response struct {
	ID     uint32
	Status Status
	Errors []string
	Kind   Kind

	CreateGame  *ResponseCreateGame
	GameInfo    *ResponseGameInfo
	Observation *ResponseObservation

	Body []byte
}

type ResponseCreateGame struct {
	Error        int32
	ErrorDetails string
}

type ResponseGameInfo struct {
	MapName      string
	LocalMapPath string
	StartRaw     *StartRaw
}

type StartRaw struct {
	MapSize        Size2DI
	PathingGrid    *ImageData
	TerrainHeight  *ImageData
	PlacementGrid  *ImageData
	PlayableArea   RectangleI
	StartLocations []Point2D
}

// ImageData is the engine's packed grid format: a width x height image with
// BitsPerPixel bits per cell, rows first.
type ImageData struct {
	BitsPerPixel int32
	Size         Size2DI
	Data         []byte
}

type Size2DI struct {
	X, Y int32
}

type PointI struct {
	X, Y int32
}

type RectangleI struct {
	P0, P1 PointI
}

type Point2D struct {
	X, Y float32
}

type Point struct {
	X, Y, Z float32
}

type ResponseObservation struct {
	Observation   *Observation
	PlayerResults []PlayerResult
}

type PlayerResult struct {
	PlayerID uint32
	Result   GameResult
}

type Observation struct {
	GameLoop uint32
	Raw      *ObservationRaw
}

type ObservationRaw struct {
	PowerSources []PowerSource
	Units        []Unit
	MapState     *MapState
}

type PowerSource struct {
	Pos    Point
	Radius float32
	Tag    uint64
}

type MapState struct {
	Visibility *ImageData
	Creep      *ImageData
}

// Unit is one raw per-unit record of an observation. Tag and Pos are
// optional on the wire; HasTag and a nil Pos report their absence.
type Unit struct {
	Tag      uint64
	HasTag   bool
	UnitType uint32
	Alliance Alliance
	Owner    int32
	Pos      *Point
	Facing   float32
	Radius   float32

	BuildProgress    float32
	HasBuildProgress bool

	Health    float32
	HealthMax float32
	Shield    float32
	ShieldMax float32
	Energy    float32
	EnergyMax float32

	IsFlying bool
	Orders   []UnitOrder
}

type UnitOrder struct {
	AbilityID     uint32
	TargetUnitTag uint64
	Progress      float32
}
