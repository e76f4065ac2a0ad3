package config

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// loadLua runs a Lua script and reads the globals it leaves behind:
//
//	addr = ":8080"
//	allowed_origins = { "http://localhost:8080" }
//	image = "puzzle.jpg"
//	puzzle = { rows = 8, cols = 12, layout = "solved" }
//	limits = { max_sessions = 6 }
//
// Keys mirror the YAML names. Missing keys keep their defaults.
func loadLua(path string, cfg *Config) error {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoFile(path); err != nil {
		return fmt.Errorf("config: run %s: %w", path, err)
	}

	luaString(L.GetGlobal("addr"), &cfg.Addr)
	luaString(L.GetGlobal("image_dir"), &cfg.ImageDir)
	luaString(L.GetGlobal("image"), &cfg.Image)
	luaString(L.GetGlobal("public_url"), &cfg.PublicURL)
	if t, ok := L.GetGlobal("allowed_origins").(*lua.LTable); ok {
		cfg.AllowedOrigins = nil
		t.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, string(s))
			}
		})
	}

	if t, ok := L.GetGlobal("puzzle").(*lua.LTable); ok {
		p := &cfg.Puzzle
		luaInt(t.RawGetString("rows"), &p.Rows)
		luaInt(t.RawGetString("cols"), &p.Cols)
		luaFloat(t.RawGetString("piece_width"), &p.PieceWidth)
		luaFloat(t.RawGetString("piece_height"), &p.PieceHeight)
		luaFloat(t.RawGetString("snap_threshold"), &p.SnapThreshold)
		luaFloat(t.RawGetString("connection_threshold"), &p.ConnectionThreshold)
		luaString(t.RawGetString("layout"), &p.Layout)
		if n, ok := t.RawGetString("seed").(lua.LNumber); ok {
			p.Seed = int64(n)
		}
	}

	if t, ok := L.GetGlobal("limits").(*lua.LTable); ok {
		l := &cfg.Limits
		luaInt(t.RawGetString("max_sessions"), &l.MaxSessions)
		luaFloat(t.RawGetString("drag_rate"), &l.DragRate)
		luaInt(t.RawGetString("drag_burst"), &l.DragBurst)
		luaInt(t.RawGetString("send_buffer"), &l.SendBuffer)
	}
	return nil
}

func luaString(v lua.LValue, dst *string) {
	if s, ok := v.(lua.LString); ok {
		*dst = string(s)
	}
}

func luaInt(v lua.LValue, dst *int) {
	if n, ok := v.(lua.LNumber); ok {
		*dst = int(n)
	}
}

func luaFloat(v lua.LValue, dst *float64) {
	if n, ok := v.(lua.LNumber); ok {
		*dst = float64(n)
	}
}
