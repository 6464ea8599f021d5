package game_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardgameai/mctsd/game"
)

func TestTicTacToeDefaultStateIsEmpty(t *testing.T) {
	g, err := game.Create(game.TypeTagTicTacToe, nil)
	require.NoError(t, err)
	s := g.CreateDefaultState()
	grid := s.(game.GridState)
	rows, cols := grid.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	for i := 0; i < rows*cols; i++ {
		assert.Equal(t, 0, grid.CellAt(i))
	}
	assert.Equal(t, 1, g.NextPlayer(s))
}

func TestTicTacToeHorizontalWin(t *testing.T) {
	g, err := game.Create(game.TypeTagTicTacToe, nil)
	require.NoError(t, err)
	s := g.CreateDefaultState()

	moves := []struct{ row, col int }{
		{0, 0}, // P1
		{1, 0}, // P2
		{0, 1}, // P1
		{1, 1}, // P2
		{0, 2}, // P1 wins row 0
	}
	var result []float32
	var terminal bool
	for _, m := range moves {
		data, _ := json.Marshal(map[string]int{"row": m.row, "col": m.col})
		a, err := g.CreateAction(data)
		require.NoError(t, err)
		require.True(t, g.IsValidAction(s, a))
		result, terminal = g.TakeAction(s, a)
	}
	require.True(t, terminal)
	assert.Equal(t, []float32{1, 0}, result)
}

func TestTicTacToeRejectsOccupiedCell(t *testing.T) {
	g, err := game.Create(game.TypeTagTicTacToe, nil)
	require.NoError(t, err)
	s := g.CreateDefaultState()
	data, _ := json.Marshal(map[string]int{"row": 0, "col": 0})
	a, err := g.CreateAction(data)
	require.NoError(t, err)
	_, _ = g.TakeAction(s, a)
	assert.False(t, g.IsValidAction(s, a))
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	g, err := game.Create(game.TypeTagGomoku, nil)
	require.NoError(t, err)
	s := g.CreateDefaultState()
	data, _ := json.Marshal(map[string]int{"row": 7, "col": 7})
	a, err := g.CreateAction(data)
	require.NoError(t, err)
	g.TakeAction(s, a)

	raw, err := s.MarshalJSON()
	require.NoError(t, err)
	s2, err := g.CreateState(raw)
	require.NoError(t, err)
	assert.True(t, s.Equal(s2))
}

func TestUnknownGameType(t *testing.T) {
	_, err := game.Create("no_such_game", nil)
	assert.ErrorIs(t, err, game.ErrUnknownType)
}
