package protocol

import (
	"errors"
	"strings"
)

// GameSetup describes a game to create before the bot connects.
type GameSetup struct {
	MapPath    string
	PlayerName string

	// VsBot selects a second participant slot instead of a computer opponent.
	VsBot        bool
	OpponentName string
	AIRace       Race
	AIDifficulty string

	DisableFog bool
	Realtime   bool
	RandomSeed *uint32
}

var errNoMap = errors.New("protocol: game setup needs a map path")

// NewCreateGameRequest builds the create-game request for s.
func NewCreateGameRequest(s GameSetup) (Request, error) {
	if strings.TrimSpace(s.MapPath) == "" {
		return Request{}, errNoMap
	}
	player := PlayerSetup{
		Type:       PlayerParticipant,
		Race:       RaceRandom,
		PlayerName: s.PlayerName,
	}
	var opponent PlayerSetup
	if s.VsBot {
		opponent = PlayerSetup{
			Type:       PlayerParticipant,
			Race:       RaceRandom,
			PlayerName: s.OpponentName,
		}
	} else {
		race := s.AIRace
		if race == RaceNone {
			race = RaceRandom
		}
		opponent = PlayerSetup{
			Type:       PlayerComputer,
			Race:       race,
			Difficulty: ParseDifficulty(s.AIDifficulty),
		}
	}

	cg := &RequestCreateGame{
		LocalMap:    &LocalMap{MapPath: s.MapPath},
		PlayerSetup: []PlayerSetup{player, opponent},
		DisableFog:  s.DisableFog,
		Realtime:    s.Realtime,
	}
	if s.RandomSeed != nil {
		cg.RandomSeed = *s.RandomSeed
		cg.HasRandomSeed = true
	}
	return Request{Kind: KindCreateGame, CreateGame: cg}, nil
}

// ParseDifficulty maps the setup form's difficulty labels. Unknown labels
// fall back to medium.
func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "veryeasy", "very_easy":
		return DifficultyVeryEasy
	case "easy":
		return DifficultyEasy
	case "mediumhard", "medium_hard":
		return DifficultyMediumHard
	case "hard":
		return DifficultyHard
	case "harder":
		return DifficultyHarder
	case "veryhard", "very_hard":
		return DifficultyVeryHard
	case "cheat", "cheatinsane", "cheat_insane":
		return DifficultyCheatInsane
	default:
		return DifficultyMedium
	}
}

// ParseRace maps a race name; unknown names mean random.
func ParseRace(s string) Race {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "terran":
		return RaceTerran
	case "zerg":
		return RaceZerg
	case "protoss":
		return RaceProtoss
	default:
		return RaceRandom
	}
}
