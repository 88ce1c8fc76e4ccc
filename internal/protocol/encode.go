package protocol

import "google.golang.org/protobuf/encoding/protowire"

// EncodeRequest serializes req. Typed sub-messages take precedence over Body.
func EncodeRequest(req Request) []byte {
	var b []byte
	if req.Kind != KindNone {
		var body []byte
		switch {
		case req.Kind == KindCreateGame && req.CreateGame != nil:
			body = encodeRequestCreateGame(nil, req.CreateGame)
		case req.Kind == KindObservation && req.Observation != nil:
			if req.Observation.DisableFog {
				body = appendBool(body, 1, true)
			}
			if req.Observation.GameLoop != 0 {
				body = appendVarint(body, 2, uint64(req.Observation.GameLoop))
			}
		case req.Kind == KindStep && req.Step != nil:
			body = appendVarint(nil, 1, uint64(req.Step.Count))
		default:
			body = req.Body
		}
		b = appendBytes(b, protowire.Number(req.Kind), body)
	}
	if req.ID != 0 {
		b = appendVarint(b, fieldID, uint64(req.ID))
	}
	return b
}

// EncodeResponse serializes resp. The relay never re-encodes engine traffic;
// this exists for tools and tests that need to synthesize engine frames.
func EncodeResponse(resp Response) []byte {
	var b []byte
	if resp.Kind != KindNone {
		var body []byte
		switch {
		case resp.Kind == KindCreateGame && resp.CreateGame != nil:
			if resp.CreateGame.Error != 0 {
				body = appendInt32(body, 1, resp.CreateGame.Error)
			}
			if resp.CreateGame.ErrorDetails != "" {
				body = appendString(body, 2, resp.CreateGame.ErrorDetails)
			}
		case resp.Kind == KindGameInfo && resp.GameInfo != nil:
			body = encodeGameInfo(nil, resp.GameInfo)
		case resp.Kind == KindObservation && resp.Observation != nil:
			body = encodeResponseObservation(nil, resp.Observation)
		default:
			body = resp.Body
		}
		b = appendBytes(b, protowire.Number(resp.Kind), body)
	}
	if resp.ID != 0 {
		b = appendVarint(b, fieldID, uint64(resp.ID))
	}
	for _, e := range resp.Errors {
		b = appendString(b, fieldError, e)
	}
	if resp.Status != StatusUnset {
		b = appendInt32(b, fieldStatus, int32(resp.Status))
	}
	return b
}

func encodeRequestCreateGame(b []byte, cg *RequestCreateGame) []byte {
	if cg.LocalMap != nil {
		b = appendMessage(b, 1, func(m []byte) []byte {
			if cg.LocalMap.MapPath != "" {
				m = appendString(m, 1, cg.LocalMap.MapPath)
			}
			if len(cg.LocalMap.MapData) > 0 {
				m = appendBytes(m, 7, cg.LocalMap.MapData)
			}
			return m
		})
	}
	if cg.BattlenetMapName != "" {
		b = appendString(b, 2, cg.BattlenetMapName)
	}
	for _, ps := range cg.PlayerSetup {
		b = appendMessage(b, 3, func(m []byte) []byte {
			m = appendInt32(m, 1, int32(ps.Type))
			if ps.Race != RaceNone {
				m = appendInt32(m, 2, int32(ps.Race))
			}
			if ps.Difficulty != 0 {
				m = appendInt32(m, 3, int32(ps.Difficulty))
			}
			if ps.PlayerName != "" {
				m = appendString(m, 4, ps.PlayerName)
			}
			return m
		})
	}
	b = appendBool(b, 4, cg.DisableFog)
	if cg.HasRandomSeed {
		b = appendVarint(b, 5, uint64(cg.RandomSeed))
	}
	b = appendBool(b, 6, cg.Realtime)
	return b
}

func encodeGameInfo(b []byte, gi *ResponseGameInfo) []byte {
	if gi.MapName != "" {
		b = appendString(b, 1, gi.MapName)
	}
	if gi.LocalMapPath != "" {
		b = appendString(b, 2, gi.LocalMapPath)
	}
	if sr := gi.StartRaw; sr != nil {
		b = appendMessage(b, 4, func(m []byte) []byte {
			m = appendMessage(m, 1, func(s []byte) []byte { return encodeSize(s, sr.MapSize) })
			if sr.PathingGrid != nil {
				m = appendMessage(m, 2, func(s []byte) []byte { return encodeImage(s, sr.PathingGrid) })
			}
			if sr.TerrainHeight != nil {
				m = appendMessage(m, 3, func(s []byte) []byte { return encodeImage(s, sr.TerrainHeight) })
			}
			if sr.PlacementGrid != nil {
				m = appendMessage(m, 4, func(s []byte) []byte { return encodeImage(s, sr.PlacementGrid) })
			}
			m = appendMessage(m, 5, func(s []byte) []byte {
				s = appendMessage(s, 1, func(p []byte) []byte { return encodeSize(p, Size2DI(sr.PlayableArea.P0)) })
				return appendMessage(s, 2, func(p []byte) []byte { return encodeSize(p, Size2DI(sr.PlayableArea.P1)) })
			})
			for _, loc := range sr.StartLocations {
				m = appendMessage(m, 6, func(s []byte) []byte {
					s = appendFloat(s, 1, loc.X)
					return appendFloat(s, 2, loc.Y)
				})
			}
			return m
		})
	}
	return b
}

func encodeImage(b []byte, img *ImageData) []byte {
	b = appendInt32(b, 1, img.BitsPerPixel)
	b = appendMessage(b, 2, func(s []byte) []byte { return encodeSize(s, img.Size) })
	return appendBytes(b, 3, img.Data)
}

func encodeSize(b []byte, s Size2DI) []byte {
	b = appendInt32(b, 1, s.X)
	return appendInt32(b, 2, s.Y)
}

func encodePoint(b []byte, p Point) []byte {
	b = appendFloat(b, 1, p.X)
	b = appendFloat(b, 2, p.Y)
	return appendFloat(b, 3, p.Z)
}

func encodeResponseObservation(b []byte, ro *ResponseObservation) []byte {
	if obs := ro.Observation; obs != nil {
		b = appendMessage(b, 3, func(m []byte) []byte {
			if obs.Raw != nil {
				m = appendMessage(m, 5, func(r []byte) []byte { return encodeObservationRaw(r, obs.Raw) })
			}
			return appendVarint(m, 9, uint64(obs.GameLoop))
		})
	}
	for _, pr := range ro.PlayerResults {
		b = appendMessage(b, 4, func(m []byte) []byte {
			m = appendVarint(m, 1, uint64(pr.PlayerID))
			return appendInt32(m, 2, int32(pr.Result))
		})
	}
	return b
}

func encodeObservationRaw(b []byte, raw *ObservationRaw) []byte {
	if len(raw.PowerSources) > 0 {
		b = appendMessage(b, 1, func(m []byte) []byte {
			for _, ps := range raw.PowerSources {
				m = appendMessage(m, 1, func(p []byte) []byte {
					p = appendMessage(p, 1, func(q []byte) []byte { return encodePoint(q, ps.Pos) })
					p = appendFloat(p, 2, ps.Radius)
					return appendVarint(p, 3, ps.Tag)
				})
			}
			return m
		})
	}
	for i := range raw.Units {
		u := &raw.Units[i]
		b = appendMessage(b, 2, func(m []byte) []byte { return encodeUnit(m, u) })
	}
	if ms := raw.MapState; ms != nil {
		b = appendMessage(b, 3, func(m []byte) []byte {
			if ms.Visibility != nil {
				m = appendMessage(m, 1, func(s []byte) []byte { return encodeImage(s, ms.Visibility) })
			}
			if ms.Creep != nil {
				m = appendMessage(m, 2, func(s []byte) []byte { return encodeImage(s, ms.Creep) })
			}
			return m
		})
	}
	return b
}

func encodeUnit(b []byte, u *Unit) []byte {
	if u.Alliance != AllianceUnset {
		b = appendInt32(b, 2, int32(u.Alliance))
	}
	if u.HasTag {
		b = appendVarint(b, 3, u.Tag)
	}
	b = appendVarint(b, 4, uint64(u.UnitType))
	if u.Owner != 0 {
		b = appendInt32(b, 5, u.Owner)
	}
	if u.Pos != nil {
		b = appendMessage(b, 6, func(m []byte) []byte { return encodePoint(m, *u.Pos) })
	}
	b = appendFloat(b, 7, u.Facing)
	b = appendFloat(b, 8, u.Radius)
	if u.HasBuildProgress {
		b = appendFloat(b, 9, u.BuildProgress)
	}
	b = appendFloat(b, 14, u.Health)
	b = appendFloat(b, 15, u.HealthMax)
	b = appendFloat(b, 16, u.Shield)
	b = appendFloat(b, 17, u.Energy)
	if u.IsFlying {
		b = appendBool(b, 20, true)
	}
	for _, o := range u.Orders {
		b = appendMessage(b, 22, func(m []byte) []byte {
			m = appendVarint(m, 1, uint64(o.AbilityID))
			if o.TargetUnitTag != 0 {
				m = appendVarint(m, 3, o.TargetUnitTag)
			}
			return appendFloat(m, 4, o.Progress)
		})
	}
	b = appendFloat(b, 36, u.ShieldMax)
	b = appendFloat(b, 37, u.EnergyMax)
	return b
}
