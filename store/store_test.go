package store_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/boardgameai/mctsd/actiongen"
	_ "github.com/boardgameai/mctsd/game"
	_ "github.com/boardgameai/mctsd/player/mctsplayer"
	_ "github.com/boardgameai/mctsd/player/randmove"
	"github.com/boardgameai/mctsd/store"
)

func TestAddGameAndStateRoundTrips(t *testing.T) {
	st := store.NewStore()
	gameID, err := st.AddGame("tic_tac_toe", nil)
	require.NoError(t, err)

	stateID, s, err := st.AddState(gameID, nil)
	require.NoError(t, err)
	assert.NotZero(t, stateID)
	assert.NotNil(t, s)
}

func TestAddGameUnknownTypeFails(t *testing.T) {
	st := store.NewStore()
	_, err := st.AddGame("not_a_real_game", nil)
	assert.Error(t, err)
}

func TestAddStateUnknownGameFails(t *testing.T) {
	st := store.NewStore()
	_, _, err := st.AddState(999, nil)
	assert.ErrorIs(t, err, store.ErrUnknownID)
}

func TestAddPlayerAndActionGenerator(t *testing.T) {
	st := store.NewStore()
	gameID, err := st.AddGame("tic_tac_toe", nil)
	require.NoError(t, err)
	stateID, _, err := st.AddState(gameID, nil)
	require.NoError(t, err)

	agID, err := st.AddActionGenerator(gameID, stateID, "default", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotZero(t, agID)

	playerData, err := json.Marshal(map[string]interface{}{
		"actionGenerator": map[string]interface{}{"type": "default", "data": map[string]interface{}{}},
	})
	require.NoError(t, err)
	playerID, err := st.AddPlayer(gameID, stateID, "random_move", playerData)
	require.NoError(t, err)
	assert.NotZero(t, playerID)
}

func TestAddPlayerWithDefaultWorkersBuildsUsableMCTSPlayer(t *testing.T) {
	st := store.NewStore()
	st.DefaultWorkers = 2
	gameID, err := st.AddGame("tic_tac_toe", nil)
	require.NoError(t, err)
	stateID, _, err := st.AddState(gameID, nil)
	require.NoError(t, err)

	playerData, err := json.Marshal(map[string]interface{}{
		"iterations":        20,
		"explorationFactor": 1.0,
		"goalMatrix":        [][]float32{{1, 0}, {0, 1}},
		"actionGenerator":   map[string]interface{}{"type": "default", "data": map[string]interface{}{}},
		"rolloutPlayer":     map[string]interface{}{"type": "random_move", "data": map[string]interface{}{"actionGenerator": map[string]interface{}{"type": "default", "data": map[string]interface{}{}}}},
	})
	require.NoError(t, err)

	playerID, err := st.AddPlayer(gameID, stateID, "mcts", playerData)
	require.NoError(t, err)
	assert.NotZero(t, playerID)

	a, err := st.GetBestAction(gameID, stateID, playerID, nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestGenerateActionsListsEveryEmptyCell(t *testing.T) {
	st := store.NewStore()
	gameID, _ := st.AddGame("tic_tac_toe", nil)
	stateID, _, _ := st.AddState(gameID, nil)
	agID, err := st.AddActionGenerator(gameID, stateID, "default", json.RawMessage(`{}`))
	require.NoError(t, err)

	actions, err := st.GenerateActions(gameID, stateID, agID)
	require.NoError(t, err)
	assert.Len(t, actions, 9)
}

func TestTakeActionAppliesAndFansOutUpdate(t *testing.T) {
	st := store.NewStore()
	gameID, _ := st.AddGame("tic_tac_toe", nil)
	stateID, s, _ := st.AddState(gameID, nil)
	agID, err := st.AddActionGenerator(gameID, stateID, "default", json.RawMessage(`{}`))
	require.NoError(t, err)

	actions, err := st.GenerateActions(gameID, stateID, agID)
	require.NoError(t, err)
	require.NotEmpty(t, actions)

	_, terminal, err := st.TakeAction(gameID, stateID, actions[0])
	require.NoError(t, err)
	assert.False(t, terminal)

	remaining, err := st.GenerateActions(gameID, stateID, agID)
	require.NoError(t, err)
	assert.Len(t, remaining, 8)
	_ = s
}

func TestTakeActionRejectsIllegalMove(t *testing.T) {
	st := store.NewStore()
	gameID, _ := st.AddGame("tic_tac_toe", nil)
	stateID, _, _ := st.AddState(gameID, nil)
	agID, err := st.AddActionGenerator(gameID, stateID, "default", json.RawMessage(`{}`))
	require.NoError(t, err)

	actions, err := st.GenerateActions(gameID, stateID, agID)
	require.NoError(t, err)
	_, _, err = st.TakeAction(gameID, stateID, actions[0])
	require.NoError(t, err)

	_, _, err = st.TakeAction(gameID, stateID, actions[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestRemoveGameCascadesToDescendants(t *testing.T) {
	st := store.NewStore()
	gameID, _ := st.AddGame("tic_tac_toe", nil)
	stateID, _, _ := st.AddState(gameID, nil)

	st.RemoveGame(gameID)

	_, _, err := st.AddState(gameID, nil)
	assert.ErrorIs(t, err, store.ErrUnknownID)

	_, err = st.GenerateActions(gameID, stateID, 1)
	assert.ErrorIs(t, err, store.ErrUnknownID)
}

func TestRemoveStateCascadesToDescendants(t *testing.T) {
	st := store.NewStore()
	gameID, _ := st.AddGame("tic_tac_toe", nil)
	stateID, _, _ := st.AddState(gameID, nil)
	agID, err := st.AddActionGenerator(gameID, stateID, "default", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, st.RemoveState(gameID, stateID))

	_, err = st.GenerateActions(gameID, stateID, agID)
	assert.ErrorIs(t, err, store.ErrUnknownID)
}
