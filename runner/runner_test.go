package runner_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/boardgameai/mctsd/actiongen"
	_ "github.com/boardgameai/mctsd/game"
	_ "github.com/boardgameai/mctsd/player/randmove"
	"github.com/boardgameai/mctsd/runner"
)

func randomMoveSpec() runner.PlayerSpec {
	data, _ := json.Marshal(map[string]interface{}{
		"actionGenerator": map[string]interface{}{"type": "default", "data": map[string]interface{}{}},
	})
	return runner.PlayerSpec{Type: "random_move", Data: data}
}

func TestRunGamesSequentialProducesOneResultPerRound(t *testing.T) {
	players := []runner.PlayerSpec{randomMoveSpec(), randomMoveSpec()}
	results, final, err := runner.RunGames(context.Background(), "tic_tac_toe", nil, 4, false, players)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Len(t, final, 2)
	var total float32
	for _, v := range final {
		total += v
	}
	assert.InDelta(t, 4.0, total, 1e-6)
}

func TestRunGamesParallelProducesOneResultPerRound(t *testing.T) {
	players := []runner.PlayerSpec{randomMoveSpec(), randomMoveSpec()}
	results, final, err := runner.RunGames(context.Background(), "tic_tac_toe", nil, 6, true, players)
	require.NoError(t, err)
	assert.Len(t, results, 6)
	assert.Len(t, final, 2)
}

func TestRunGamesUnknownGameTypeFails(t *testing.T) {
	players := []runner.PlayerSpec{randomMoveSpec(), randomMoveSpec()}
	_, _, err := runner.RunGames(context.Background(), "not_a_game", nil, 1, false, players)
	assert.Error(t, err)
}
