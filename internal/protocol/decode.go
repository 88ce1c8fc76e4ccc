package protocol

// DecodeRequest parses one bot -> engine frame. On failure it returns the zero
// Request together with an error wrapping ErrMalformed. Byte slices in the
// result alias b.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	err := walk(b, func(f field) error {
		switch {
		case f.num == fieldID && f.isVarint():
			req.ID = f.uint32()
		case isKindField(f.num) && f.isBytes():
			req.Kind = Kind(f.num)
			req.Body = f.buf
			switch req.Kind {
			case KindCreateGame:
				cg, err := decodeRequestCreateGame(f.buf)
				if err != nil {
					return err
				}
				req.CreateGame = &cg
			case KindObservation:
				var ro RequestObservation
				if err := walk(f.buf, func(g field) error {
					switch g.num {
					case 1:
						ro.DisableFog = g.bool()
					case 2:
						ro.GameLoop = g.uint32()
					}
					return nil
				}); err != nil {
					return err
				}
				req.Observation = &ro
			case KindStep:
				var rs RequestStep
				if err := walk(f.buf, func(g field) error {
					if g.num == 1 && g.isVarint() {
						rs.Count = g.uint32()
					}
					return nil
				}); err != nil {
					return err
				}
				req.Step = &rs
			}
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeResponse parses one engine -> bot frame. A corrupt frame yields the
// zero Response and an error wrapping ErrMalformed; it never panics.
func DecodeResponse(b []byte) (Response, error) {
	var resp Response
	err := walk(b, func(f field) error {
		switch {
		case f.num == fieldID && f.isVarint():
			resp.ID = f.uint32()
		case f.num == fieldStatus && f.isVarint():
			resp.Status = Status(f.int32())
		case f.num == fieldError && f.isBytes():
			resp.Errors = append(resp.Errors, string(f.buf))
		case isKindField(f.num) && f.isBytes():
			resp.Kind = Kind(f.num)
			resp.Body = f.buf
			switch resp.Kind {
			case KindCreateGame:
				var cg ResponseCreateGame
				if err := walk(f.buf, func(g field) error {
					switch {
					case g.num == 1 && g.isVarint():
						cg.Error = g.int32()
					case g.num == 2 && g.isBytes():
						cg.ErrorDetails = string(g.buf)
					}
					return nil
				}); err != nil {
					return err
				}
				resp.CreateGame = &cg
			case KindGameInfo:
				gi, err := decodeGameInfo(f.buf)
				if err != nil {
					return err
				}
				resp.GameInfo = &gi
			case KindObservation:
				ro, err := decodeResponseObservation(f.buf)
				if err != nil {
					return err
				}
				resp.Observation = &ro
			}
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func decodeRequestCreateGame(b []byte) (RequestCreateGame, error) {
	var cg RequestCreateGame
	err := walk(b, func(f field) error {
		switch {
		case f.num == 1 && f.isBytes():
			lm := &LocalMap{}
			if err := walk(f.buf, func(g field) error {
				switch {
				case g.num == 1 && g.isBytes():
					lm.MapPath = string(g.buf)
				case g.num == 7 && g.isBytes():
					lm.MapData = g.buf
				}
				return nil
			}); err != nil {
				return err
			}
			cg.LocalMap = lm
		case f.num == 2 && f.isBytes():
			cg.BattlenetMapName = string(f.buf)
		case f.num == 3 && f.isBytes():
			var ps PlayerSetup
			if err := walk(f.buf, func(g field) error {
				switch {
				case g.num == 1 && g.isVarint():
					ps.Type = PlayerType(g.int32())
				case g.num == 2 && g.isVarint():
					ps.Race = Race(g.int32())
				case g.num == 3 && g.isVarint():
					ps.Difficulty = Difficulty(g.int32())
				case g.num == 4 && g.isBytes():
					ps.PlayerName = string(g.buf)
				}
				return nil
			}); err != nil {
				return err
			}
			cg.PlayerSetup = append(cg.PlayerSetup, ps)
		case f.num == 4 && f.isVarint():
			cg.DisableFog = f.bool()
		case f.num == 5 && f.isVarint():
			cg.RandomSeed = f.uint32()
			cg.HasRandomSeed = true
		case f.num == 6 && f.isVarint():
			cg.Realtime = f.bool()
		}
		return nil
	})
	return cg, err
}

func decodeGameInfo(b []byte) (ResponseGameInfo, error) {
	var gi ResponseGameInfo
	err := walk(b, func(f field) error {
		switch {
		case f.num == 1 && f.isBytes():
			gi.MapName = string(f.buf)
		case f.num == 2 && f.isBytes():
			gi.LocalMapPath = string(f.buf)
		case f.num == 4 && f.isBytes():
			sr, err := decodeStartRaw(f.buf)
			if err != nil {
				return err
			}
			gi.StartRaw = &sr
		}
		return nil
	})
	return gi, err
}

func decodeStartRaw(b []byte) (StartRaw, error) {
	var sr StartRaw
	err := walk(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		var err error
		switch f.num {
		case 1:
			sr.MapSize, err = decodeSize(f.buf)
		case 2:
			sr.PathingGrid, err = decodeImage(f.buf)
		case 3:
			sr.TerrainHeight, err = decodeImage(f.buf)
		case 4:
			sr.PlacementGrid, err = decodeImage(f.buf)
		case 5:
			sr.PlayableArea, err = decodeRect(f.buf)
		case 6:
			var p Point2D
			p, err = decodePoint2D(f.buf)
			sr.StartLocations = append(sr.StartLocations, p)
		}
		return err
	})
	return sr, err
}

func decodeImage(b []byte) (*ImageData, error) {
	img := &ImageData{}
	err := walk(b, func(f field) error {
		switch {
		case f.num == 1 && f.isVarint():
			img.BitsPerPixel = f.int32()
		case f.num == 2 && f.isBytes():
			s, err := decodeSize(f.buf)
			if err != nil {
				return err
			}
			img.Size = s
		case f.num == 3 && f.isBytes():
			img.Data = f.buf
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func decodeSize(b []byte) (Size2DI, error) {
	var s Size2DI
	err := walk(b, func(f field) error {
		switch {
		case f.num == 1 && f.isVarint():
			s.X = f.int32()
		case f.num == 2 && f.isVarint():
			s.Y = f.int32()
		}
		return nil
	})
	return s, err
}

func decodePointI(b []byte) (PointI, error) {
	s, err := decodeSize(b)
	return PointI{X: s.X, Y: s.Y}, err
}

func decodeRect(b []byte) (RectangleI, error) {
	var r RectangleI
	err := walk(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		var err error
		switch f.num {
		case 1:
			r.P0, err = decodePointI(f.buf)
		case 2:
			r.P1, err = decodePointI(f.buf)
		}
		return err
	})
	return r, err
}

func decodePoint2D(b []byte) (Point2D, error) {
	var p Point2D
	err := walk(b, func(f field) error {
		v, ok := f.float()
		if !ok {
			return nil
		}
		switch f.num {
		case 1:
			p.X = v
		case 2:
			p.Y = v
		}
		return nil
	})
	return p, err
}

func decodePoint(b []byte) (Point, error) {
	var p Point
	err := walk(b, func(f field) error {
		v, ok := f.float()
		if !ok {
			return nil
		}
		switch f.num {
		case 1:
			p.X = v
		case 2:
			p.Y = v
		case 3:
			p.Z = v
		}
		return nil
	})
	return p, err
}

func decodeResponseObservation(b []byte) (ResponseObservation, error) {
	var ro ResponseObservation
	err := walk(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		switch f.num {
		case 3:
			obs, err := decodeObservation(f.buf)
			if err != nil {
				return err
			}
			ro.Observation = &obs
		case 4:
			var pr PlayerResult
			if err := walk(f.buf, func(g field) error {
				switch {
				case g.num == 1 && g.isVarint():
					pr.PlayerID = g.uint32()
				case g.num == 2 && g.isVarint():
					pr.Result = GameResult(g.int32())
				}
				return nil
			}); err != nil {
				return err
			}
			ro.PlayerResults = append(ro.PlayerResults, pr)
		}
		return nil
	})
	return ro, err
}

func decodeObservation(b []byte) (Observation, error) {
	var obs Observation
	err := walk(b, func(f field) error {
		switch {
		case f.num == 9 && f.isVarint():
			obs.GameLoop = f.uint32()
		case f.num == 5 && f.isBytes():
			raw, err := decodeObservationRaw(f.buf)
			if err != nil {
				return err
			}
			obs.Raw = &raw
		}
		return nil
	})
	return obs, err
}

func decodeObservationRaw(b []byte) (ObservationRaw, error) {
	var raw ObservationRaw
	err := walk(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		switch f.num {
		case 1:
			// PlayerRaw: only power sources are of interest.
			return walk(f.buf, func(g field) error {
				if g.num != 1 || !g.isBytes() {
					return nil
				}
				ps, err := decodePowerSource(g.buf)
				if err != nil {
					return err
				}
				raw.PowerSources = append(raw.PowerSources, ps)
				return nil
			})
		case 2:
			u, err := decodeUnit(f.buf)
			if err != nil {
				return err
			}
			raw.Units = append(raw.Units, u)
		case 3:
			ms := &MapState{}
			if err := walk(f.buf, func(g field) error {
				if !g.isBytes() {
					return nil
				}
				var err error
				switch g.num {
				case 1:
					ms.Visibility, err = decodeImage(g.buf)
				case 2:
					ms.Creep, err = decodeImage(g.buf)
				}
				return err
			}); err != nil {
				return err
			}
			raw.MapState = ms
		}
		return nil
	})
	return raw, err
}

func decodePowerSource(b []byte) (PowerSource, error) {
	var ps PowerSource
	err := walk(b, func(f field) error {
		switch {
		case f.num == 1 && f.isBytes():
			p, err := decodePoint(f.buf)
			if err != nil {
				return err
			}
			ps.Pos = p
		case f.num == 2:
			if v, ok := f.float(); ok {
				ps.Radius = v
			}
		case f.num == 3 && f.isVarint():
			ps.Tag = f.u64
		}
		return nil
	})
	return ps, err
}

func decodeUnit(b []byte) (Unit, error) {
	var u Unit
	err := walk(b, func(f field) error {
		if f.isVarint() {
			switch f.num {
			case 2:
				u.Alliance = Alliance(f.int32())
			case 3:
				u.Tag = f.u64
				u.HasTag = true
			case 4:
				u.UnitType = f.uint32()
			case 5:
				u.Owner = f.int32()
			case 20:
				u.IsFlying = f.bool()
			}
			return nil
		}
		if f.isBytes() {
			switch f.num {
			case 6:
				p, err := decodePoint(f.buf)
				if err != nil {
					return err
				}
				u.Pos = &p
			case 22:
				o, err := decodeOrder(f.buf)
				if err != nil {
					return err
				}
				u.Orders = append(u.Orders, o)
			}
			return nil
		}
		v, ok := f.float()
		if !ok {
			return nil
		}
		switch f.num {
		case 7:
			u.Facing = v
		case 8:
			u.Radius = v
		case 9:
			u.BuildProgress = v
			u.HasBuildProgress = true
		case 14:
			u.Health = v
		case 15:
			u.HealthMax = v
		case 16:
			u.Shield = v
		case 17:
			u.Energy = v
		case 36:
			u.ShieldMax = v
		case 37:
			u.EnergyMax = v
		}
		return nil
	})
	return u, err
}

func decodeOrder(b []byte) (UnitOrder, error) {
	var o UnitOrder
	err := walk(b, func(f field) error {
		switch {
		case f.num == 1 && f.isVarint():
			o.AbilityID = f.uint32()
		case f.num == 3 && f.isVarint():
			o.TargetUnitTag = f.u64
		case f.num == 4:
			if v, ok := f.float(); ok {
				o.Progress = v
			}
		}
		return nil
	})
	return o, err
}
