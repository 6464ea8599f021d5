package actiongen

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/game"
)

// TypeTagNeighbor restricts enumeration to cells within Chebyshev distance
// Range of any occupied cell, grounded on original_source's
// ActionGenerators/Neighbor.hpp. On an empty board the sole candidate is the
// board centre.
const TypeTagNeighbor = "neighbor"

func init() {
	Register(TypeTagNeighbor, func(data json.RawMessage) (Generator, error) {
		cfg := struct {
			Range int `json:"range"`
		}{Range: 1}
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(ErrSchema, err.Error())
			}
		}
		if cfg.Range <= 0 {
			return nil, errors.Wrap(ErrSchema, "range must be positive")
		}
		return &neighborGenerator{rng: cfg.Range}, nil
	})
}

type neighborGenerator struct {
	rng int
}

func (g *neighborGenerator) TypeTag() string { return TypeTagNeighbor }

// neighborData tracks a candidate set of board positions within range of some
// occupied cell. Candidates are added eagerly (geometrically, without
// consulting the board) and filtered lazily against actual occupancy during
// enumeration, since Update only receives the committed action, not the
// resulting state.
type neighborData struct {
	rows, cols, rng int
	inSet           map[int]bool
	sorted          []int // ascending, kept in sync with inSet
}

func (d *neighborData) Clone() Data {
	cp := &neighborData{rows: d.rows, cols: d.cols, rng: d.rng, inSet: make(map[int]bool, len(d.inSet))}
	for k, v := range d.inSet {
		cp.inSet[k] = v
	}
	cp.sorted = append([]int(nil), d.sorted...)
	return cp
}

func (d *neighborData) Equal(other Data) bool {
	o, ok := other.(*neighborData)
	if !ok || len(o.sorted) != len(d.sorted) {
		return false
	}
	for i, v := range d.sorted {
		if o.sorted[i] != v {
			return false
		}
	}
	return true
}

func (d *neighborData) insert(pos int) {
	if d.inSet[pos] {
		return
	}
	d.inSet[pos] = true
	i := sort.SearchInts(d.sorted, pos)
	d.sorted = append(d.sorted, 0)
	copy(d.sorted[i+1:], d.sorted[i:])
	d.sorted[i] = pos
}

// pruneOccupied drops any candidate position the board now occupies. Called
// lazily during enumeration rather than eagerly in Update.
func (d *neighborData) pruneOccupied(grid game.GridState) {
	kept := d.sorted[:0]
	for _, pos := range d.sorted {
		if grid.CellAt(pos) == 0 {
			kept = append(kept, pos)
		} else {
			delete(d.inSet, pos)
		}
	}
	d.sorted = kept
}

func (d *neighborData) addNeighborsOf(pos int) {
	row, col := pos/d.cols, pos%d.cols
	for dr := -d.rng; dr <= d.rng; dr++ {
		for dc := -d.rng; dc <= d.rng; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := row+dr, col+dc
			if r < 0 || r >= d.rows || c < 0 || c >= d.cols {
				continue
			}
			d.insert(r*d.cols + c)
		}
	}
}

func (g *neighborGenerator) CreateData(s game.State) Data {
	grid := s.(game.GridState)
	rows, cols := grid.Dims()
	d := &neighborData{rows: rows, cols: cols, rng: g.rng, inSet: make(map[int]bool)}
	any := false
	for pos := 0; pos < rows*cols; pos++ {
		if grid.CellAt(pos) != 0 {
			any = true
			d.addNeighborsOf(pos)
		}
	}
	d.pruneOccupied(grid)
	if !any {
		center := (rows/2)*cols + cols/2
		d.insert(center)
	}
	return d
}

func (g *neighborGenerator) FirstAction(data Data, s game.State) game.Action {
	d := data.(*neighborData)
	d.pruneOccupied(s.(game.GridState))
	if len(d.sorted) == 0 {
		return nil
	}
	return game.NewGridAction(d.sorted[0], d.cols)
}

func (g *neighborGenerator) NextAction(data Data, s game.State, cur game.Action) (game.Action, bool) {
	d := data.(*neighborData)
	d.pruneOccupied(s.(game.GridState))
	pos := cur.(game.GridAction).Pos()
	i := sort.SearchInts(d.sorted, pos+1)
	if i >= len(d.sorted) {
		return nil, false
	}
	return game.NewGridAction(d.sorted[i], d.cols), true
}

// Update adds the neighbourhood of the just-played cell as new candidates.
// The cell itself is dropped lazily by pruneOccupied on the next enumeration
// call, once the caller's state reflects the move.
func (g *neighborGenerator) Update(data Data, a game.Action) {
	d := data.(*neighborData)
	pos := a.(game.GridAction).Pos()
	d.addNeighborsOf(pos)
}
