package mctsplayer_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/player"
	"github.com/boardgameai/mctsd/player/mctsplayer"
	_ "github.com/boardgameai/mctsd/player/randmove"
)

type fixedState struct{ s game.State }

func (f fixedState) Current() game.State { return f.s }

func newTicTacToe(t *testing.T) (game.Game, game.State) {
	t.Helper()
	g, err := game.Create(game.TypeTagTicTacToe, nil)
	require.NoError(t, err)
	return g, g.CreateDefaultState()
}

func config(parallel bool) json.RawMessage {
	cfg := map[string]interface{}{
		"parallel":          parallel,
		"iterations":        50,
		"explorationFactor": 1.0,
		"goalMatrix":        [][]float32{{1, 0}, {0, 1}},
		"workers":           2,
		"actionGenerator":   map[string]interface{}{"type": "default", "data": map[string]interface{}{}},
		"rolloutPlayer":     map[string]interface{}{"type": "random_move", "data": map[string]interface{}{"actionGenerator": map[string]interface{}{"type": "default", "data": map[string]interface{}{}}}},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		panic(err)
	}
	return data
}

func TestSequentialMCTSPlayerReturnsLegalAction(t *testing.T) {
	g, s := newTicTacToe(t)
	p, err := mctsplayer.New(g, fixedState{s}, config(false))
	require.NoError(t, err)

	a := p.GetBestAction(nil)
	require.NotNil(t, a)
	assert.True(t, g.IsValidAction(s, a))
}

func TestParallelMCTSPlayerReturnsLegalAction(t *testing.T) {
	g, s := newTicTacToe(t)
	p, err := mctsplayer.New(g, fixedState{s}, config(true))
	require.NoError(t, err)

	pp := p.(*mctsplayer.Player)
	pp.StartThinking()
	a := pp.GetBestAction(nil)
	pp.StopThinking()

	require.NotNil(t, a)
	assert.True(t, g.IsValidAction(s, a))
}

func TestQueryDetailsReportsRollouts(t *testing.T) {
	g, s := newTicTacToe(t)
	p, err := mctsplayer.New(g, fixedState{s}, config(false))
	require.NoError(t, err)

	_ = p.GetBestAction(nil)
	raw, err := p.QueryDetails(json.RawMessage(`{}`))
	require.NoError(t, err)

	var resp struct {
		TotalRollouts uint64 `json:"totalRollouts"`
		Actions       []struct {
			Rollouts uint64 `json:"rollouts"`
		} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Greater(t, resp.TotalRollouts, uint64(0))
	assert.NotEmpty(t, resp.Actions)
}

func TestQueryDetailsCanExportDOT(t *testing.T) {
	g, s := newTicTacToe(t)
	p, err := mctsplayer.New(g, fixedState{s}, config(false))
	require.NoError(t, err)

	_ = p.GetBestAction(nil)
	raw, err := p.QueryDetails(json.RawMessage(`{"exportTree": true, "maxDepth": 1}`))
	require.NoError(t, err)

	var resp struct {
		DOT string `json:"dot"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Contains(t, resp.DOT, "digraph")
}

func TestParallelPlayerKeepsRolloutsAcrossUpdate(t *testing.T) {
	g, s := newTicTacToe(t)
	p, err := mctsplayer.New(g, fixedState{s}, config(true))
	require.NoError(t, err)
	pp := p.(*mctsplayer.Player)
	defer pp.Close()

	pp.StartThinking()
	thinkTime := 100 * time.Millisecond
	a := pp.GetBestAction(&thinkTime)
	require.NotNil(t, a)
	require.True(t, g.IsValidAction(s, a))

	// Stop generating new iterations so the only thing left for the
	// background pruner to do is apply this one Update; the matched
	// child's subtree must survive the reroot, not get discarded the
	// way an unrecognized move would.
	pp.StopThinking()
	pp.Update(a)

	assert.Eventually(t, func() bool {
		raw, err := pp.QueryDetails(json.RawMessage(`{}`))
		if err != nil {
			return false
		}
		var resp struct {
			TotalRollouts uint64 `json:"totalRollouts"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return false
		}
		return resp.TotalRollouts > 0
	}, 2*time.Second, 10*time.Millisecond, "totalRollouts should stay non-zero once the matched child's subtree is promoted as the new root")
}

func TestRejectsMissingSubPolicies(t *testing.T) {
	g, s := newTicTacToe(t)
	_, err := mctsplayer.New(g, fixedState{s}, json.RawMessage(`{"iterations":10,"goalMatrix":[[1,0],[0,1]]}`))
	assert.ErrorIs(t, err, player.ErrSchema)
}
