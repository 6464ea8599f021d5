package actiongen

import (
	"encoding/json"

	"github.com/boardgameai/mctsd/game"
)

// TypeTagDefault is the "all empty cells" policy, grounded on
// original_source's ActionGenerators/Default.hpp: enumerate board positions
// left to right, top to bottom, skipping occupied cells.
const TypeTagDefault = "default"

func init() {
	Register(TypeTagDefault, func(data json.RawMessage) (Generator, error) {
		return &defaultGenerator{}, nil
	})
}

type defaultGenerator struct{}

func (g *defaultGenerator) TypeTag() string { return TypeTagDefault }

type defaultData struct {
	cols int
}

func (d *defaultData) Clone() Data { return &defaultData{cols: d.cols} }

func (d *defaultData) Equal(other Data) bool {
	o, ok := other.(*defaultData)
	return ok && o.cols == d.cols
}

func (g *defaultGenerator) CreateData(s game.State) Data {
	grid := s.(game.GridState)
	_, cols := grid.Dims()
	return &defaultData{cols: cols}
}

func (g *defaultGenerator) FirstAction(data Data, s game.State) game.Action {
	return g.scanFrom(data, s, 0)
}

func (g *defaultGenerator) NextAction(data Data, s game.State, cur game.Action) (game.Action, bool) {
	pos := cur.(game.GridAction).Pos()
	a := g.scanFrom(data, s, pos+1)
	if a == nil {
		return nil, false
	}
	return a, true
}

func (g *defaultGenerator) Update(data Data, a game.Action) {
	// The default generator re-derives emptiness from the state on every
	// scan, so there is nothing to advance incrementally.
}

func (g *defaultGenerator) scanFrom(data Data, s game.State, from int) game.Action {
	d := data.(*defaultData)
	grid := s.(game.GridState)
	rows, cols := grid.Dims()
	for pos := from; pos < rows*cols; pos++ {
		if grid.CellAt(pos) == 0 {
			return game.NewGridAction(pos, d.cols)
		}
	}
	return nil
}
