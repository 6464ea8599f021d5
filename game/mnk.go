package game

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// TypeTagMNK is the generic M-N-K ruleset: place a piece, win by connecting
// Renju in a row horizontally, vertically, or on either diagonal.
const TypeTagMNK = "mnk"

// TypeTagTicTacToe and TypeTagGomoku are MNK instantiations registered under
// friendlier tags with fixed default dimensions, per SPEC_FULL.md's
// concrete-games expansion.
const (
	TypeTagTicTacToe = "tic_tac_toe"
	TypeTagGomoku    = "gomoku"
)

func init() {
	Register(TypeTagMNK, func(data json.RawMessage) (Game, error) {
		cfg := mnkConfig{Rows: 3, Cols: 3, Renju: 3}
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(ErrSchema, err.Error())
			}
		}
		return newMNKGame(TypeTagMNK, cfg)
	})
	Register(TypeTagTicTacToe, func(data json.RawMessage) (Game, error) {
		return newMNKGame(TypeTagTicTacToe, mnkConfig{Rows: 3, Cols: 3, Renju: 3})
	})
	Register(TypeTagGomoku, func(data json.RawMessage) (Game, error) {
		cfg := mnkConfig{Rows: 15, Cols: 15, Renju: 5}
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(ErrSchema, err.Error())
			}
			if cfg.Rows == 0 {
				cfg.Rows = 15
			}
			if cfg.Cols == 0 {
				cfg.Cols = 15
			}
			if cfg.Renju == 0 {
				cfg.Renju = 5
			}
		}
		return newMNKGame(TypeTagGomoku, cfg)
	})
}

type mnkConfig struct {
	Rows  int `json:"rows"`
	Cols  int `json:"cols"`
	Renju int `json:"renju"`
}

// mnkGame is the immutable ruleset shared by all mnkState instances it
// produces; grounded on original_source's m_n_k_game::Game<Rows,Cols,Renju>
// which tests the four directional runs through the just-placed cell on a
// per-player bitboard.
type mnkGame struct {
	tag   string
	rows  int
	cols  int
	renju int
}

func newMNKGame(tag string, cfg mnkConfig) (*mnkGame, error) {
	if cfg.Rows <= 0 || cfg.Cols <= 0 || cfg.Renju <= 0 {
		return nil, errors.Wrap(ErrSchema, "rows, cols, and renju must be positive")
	}
	if cfg.Renju > cfg.Rows && cfg.Renju > cfg.Cols {
		return nil, errors.Wrap(ErrSchema, "renju cannot exceed both board dimensions")
	}
	return &mnkGame{tag: tag, rows: cfg.Rows, cols: cfg.Cols, renju: cfg.Renju}, nil
}

func (g *mnkGame) TypeTag() string  { return g.tag }
func (g *mnkGame) PlayerCount() int { return 2 }

func (g *mnkGame) CreateDefaultState() State {
	return &mnkState{rows: g.rows, cols: g.cols, renju: g.renju, cells: make([]int8, g.rows*g.cols)}
}

type mnkStateJSON struct {
	Rows      int   `json:"rows"`
	Cols      int   `json:"cols"`
	Renju     int   `json:"renju"`
	Cells     []int `json:"cells"`
	MoveCount int   `json:"moveCount"`
}

func (g *mnkGame) CreateState(data json.RawMessage) (State, error) {
	var j mnkStateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	if j.Rows != g.rows || j.Cols != g.cols || j.Renju != g.renju {
		return nil, errors.Wrap(ErrSchema, "state dimensions do not match game configuration")
	}
	if len(j.Cells) != g.rows*g.cols {
		return nil, errors.Wrap(ErrSchema, "cells length does not match rows*cols")
	}
	s := &mnkState{rows: g.rows, cols: g.cols, renju: g.renju, cells: make([]int8, len(j.Cells)), moveCount: j.MoveCount}
	for i, c := range j.Cells {
		if c < 0 || c > 2 {
			return nil, errors.Wrap(ErrSchema, "cell values must be 0, 1, or 2")
		}
		s.cells[i] = int8(c)
	}
	return s, nil
}

type mnkActionJSON struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (g *mnkGame) CreateAction(data json.RawMessage) (Action, error) {
	var j mnkActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	if j.Row < 0 || j.Row >= g.rows || j.Col < 0 || j.Col >= g.cols {
		return nil, errors.Wrap(ErrSchema, "row/col out of bounds")
	}
	return &mnkAction{pos: j.Row*g.cols + j.Col, cols: g.cols}, nil
}

func (g *mnkGame) NextPlayer(s State) int {
	st := s.(*mnkState)
	return st.moveCount%2 + 1
}

func (g *mnkGame) IsValidAction(s State, a Action) bool {
	st, ok1 := s.(*mnkState)
	act, ok2 := a.(*mnkAction)
	if !ok1 || !ok2 {
		return false
	}
	if act.pos < 0 || act.pos >= g.rows*g.cols {
		return false
	}
	return st.cells[act.pos] == 0
}

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

func (g *mnkGame) TakeAction(s State, a Action) ([]float32, bool) {
	st := s.(*mnkState)
	act := a.(*mnkAction)
	player := g.NextPlayer(s)
	if act.cols == 0 {
		act.cols = g.cols
	}
	st.cells[act.pos] = int8(player)
	st.moveCount++

	row, col := act.pos/g.cols, act.pos%g.cols
	win := false
	for _, d := range directions {
		count := 1
		for x, y := row+d[0], col+d[1]; g.inBounds(x, y) && int(st.cells[x*g.cols+y]) == player; x, y = x+d[0], y+d[1] {
			count++
		}
		for x, y := row-d[0], col-d[1]; g.inBounds(x, y) && int(st.cells[x*g.cols+y]) == player; x, y = x-d[0], y-d[1] {
			count++
		}
		if count >= g.renju {
			win = true
			break
		}
	}

	if win {
		result := make([]float32, 2)
		result[player-1] = 1
		return result, true
	}
	if st.moveCount == g.rows*g.cols {
		return []float32{0.5, 0.5}, true
	}
	return nil, false
}

func (g *mnkGame) inBounds(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// mnkState is the mutable board: a flat cell array (0 empty, 1/2 = player),
// grounded on original_source's per-player bitboard design, simplified to a
// byte array since Go lacks a zero-cost fixed bitset and the board sizes in
// play (<= a few hundred cells) make this immaterial.
type mnkState struct {
	rows, cols, renju int
	cells             []int8
	moveCount         int
}

func (s *mnkState) Dims() (rows, cols int) { return s.rows, s.cols }
func (s *mnkState) CellAt(pos int) int     { return int(s.cells[pos]) }

func (s *mnkState) Clone() State {
	cells := make([]int8, len(s.cells))
	copy(cells, s.cells)
	return &mnkState{rows: s.rows, cols: s.cols, renju: s.renju, cells: cells, moveCount: s.moveCount}
}

func (s *mnkState) Equal(other State) bool {
	o, ok := other.(*mnkState)
	if !ok || o.rows != s.rows || o.cols != s.cols || o.moveCount != s.moveCount {
		return false
	}
	for i, c := range s.cells {
		if o.cells[i] != c {
			return false
		}
	}
	return true
}

func (s *mnkState) MarshalJSON() ([]byte, error) {
	cells := make([]int, len(s.cells))
	for i, c := range s.cells {
		cells[i] = int(c)
	}
	return json.Marshal(mnkStateJSON{Rows: s.rows, Cols: s.cols, Renju: s.renju, Cells: cells, MoveCount: s.moveCount})
}

// NewGridAction builds the Action representation shared by every GridState
// game (currently only the mnk family): a flat board position. Grid-aware
// action generators (package actiongen) use this instead of reaching into a
// concrete game's unexported Action type, mirroring original_source's shared
// grid_board_game::Game::Action base.
func NewGridAction(pos, cols int) Action {
	return &mnkAction{pos: pos, cols: cols}
}

// mnkAction names a single empty cell to occupy. cols is carried alongside
// the flat position so the action can serialise back to {row, col} without
// needing its owning Game in hand.
type mnkAction struct {
	pos  int
	cols int
}

func (a *mnkAction) Equal(other Action) bool {
	o, ok := other.(*mnkAction)
	return ok && o.pos == a.pos
}

func (a *mnkAction) Clone() Action { return &mnkAction{pos: a.pos, cols: a.cols} }

func (a *mnkAction) Pos() int { return a.pos }

func (a *mnkAction) MarshalJSON() ([]byte, error) {
	cols := a.cols
	if cols == 0 {
		cols = 1
	}
	return json.Marshal(mnkActionJSON{Row: a.pos / cols, Col: a.pos % cols})
}
