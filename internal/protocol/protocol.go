// Package protocol is the binary codec for the engine's request/response API.
//
// Only the subset of the schema the relay and its decoders touch is modeled.
// Unknown fields are skipped, so newer engine builds decode fine.
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind identifies which member of the request/response oneof a frame carries.
// The numeric values are the field numbers on the wire.
type Kind int32

const (
	KindNone          Kind = 0
	KindCreateGame    Kind = 1
	KindJoinGame      Kind = 2
	KindRestartGame   Kind = 3
	KindStartReplay   Kind = 4
	KindLeaveGame     Kind = 5
	KindQuickSave     Kind = 6
	KindQuickLoad     Kind = 7
	KindQuit          Kind = 8
	KindGameInfo      Kind = 9
	KindObservation   Kind = 10
	KindAction        Kind = 11
	KindStep          Kind = 12
	KindData          Kind = 13
	KindQuery         Kind = 14
	KindSaveReplay    Kind = 15
	KindReplayInfo    Kind = 16
	KindAvailableMaps Kind = 17
	KindSaveMap       Kind = 18
	KindPing          Kind = 19
	KindDebug         Kind = 20
	KindObsAction     Kind = 21
	KindMapCommand    Kind = 22
)

var kindNames = map[Kind]string{
	KindNone:          "none",
	KindCreateGame:    "create_game",
	KindJoinGame:      "join_game",
	KindRestartGame:   "restart_game",
	KindStartReplay:   "start_replay",
	KindLeaveGame:     "leave_game",
	KindQuickSave:     "quick_save",
	KindQuickLoad:     "quick_load",
	KindQuit:          "quit",
	KindGameInfo:      "game_info",
	KindObservation:   "observation",
	KindAction:        "action",
	KindStep:          "step",
	KindData:          "data",
	KindQuery:         "query",
	KindSaveReplay:    "save_replay",
	KindReplayInfo:    "replay_info",
	KindAvailableMaps: "available_maps",
	KindSaveMap:       "save_map",
	KindPing:          "ping",
	KindDebug:         "debug",
	KindObsAction:     "obs_action",
	KindMapCommand:    "map_command",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

func isKindField(n protowire.Number) bool {
	return n >= 1 && n <= 22
}

// Envelope field numbers shared by Request and Response.
const (
	fieldID     protowire.Number = 97
	fieldError  protowire.Number = 98
	fieldStatus protowire.Number = 99
)

// Status is the engine's lifecycle state reported on every response.
type Status int32

const (
	StatusUnset    Status = 0
	StatusLaunched Status = 1
	StatusInitGame Status = 2
	StatusInGame   Status = 3
	StatusInReplay Status = 4
	StatusEnded    Status = 5
	StatusQuit     Status = 6
	StatusUnknown  Status = 99
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusLaunched:
		return "launched"
	case StatusInitGame:
		return "init_game"
	case StatusInGame:
		return "in_game"
	case StatusInReplay:
		return "in_replay"
	case StatusEnded:
		return "ended"
	case StatusQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Alliance of a unit relative to the observing player.
type Alliance int32

const (
	AllianceUnset   Alliance = 0
	AllianceSelf    Alliance = 1
	AllianceAlly    Alliance = 2
	AllianceNeutral Alliance = 3
	AllianceEnemy   Alliance = 4
)

func (a Alliance) String() string {
	switch a {
	case AllianceSelf:
		return "self"
	case AllianceAlly:
		return "ally"
	case AllianceNeutral:
		return "neutral"
	case AllianceEnemy:
		return "enemy"
	default:
		return "unset"
	}
}

type PlayerType int32

const (
	PlayerParticipant PlayerType = 1
	PlayerComputer    PlayerType = 2
	PlayerObserver    PlayerType = 3
)

type Race int32

const (
	RaceNone    Race = 0
	RaceTerran  Race = 1
	RaceZerg    Race = 2
	RaceProtoss Race = 3
	RaceRandom  Race = 4
)

type Difficulty int32

const (
	DifficultyVeryEasy    Difficulty = 1
	DifficultyEasy        Difficulty = 2
	DifficultyMedium      Difficulty = 3
	DifficultyMediumHard  Difficulty = 4
	DifficultyHard        Difficulty = 5
	DifficultyHarder      Difficulty = 6
	DifficultyVeryHard    Difficulty = 7
	DifficultyCheatVision Difficulty = 8
	DifficultyCheatMoney  Difficulty = 9
	DifficultyCheatInsane Difficulty = 10
)

type GameResult int32

const (
	ResultVictory   GameResult = 1
	ResultDefeat    GameResult = 2
	ResultTie       GameResult = 3
	ResultUndecided GameResult = 4
)

func (r GameResult) String() string {
	switch r {
	case ResultVictory:
		return "victory"
	case ResultDefeat:
		return "defeat"
	case ResultTie:
		return "tie"
	case ResultUndecided:
		return "undecided"
	default:
		return "unset"
	}
}
