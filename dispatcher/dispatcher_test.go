package dispatcher_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/dispatcher"
	_ "github.com/boardgameai/mctsd/game"
	_ "github.com/boardgameai/mctsd/player/randmove"
	"github.com/boardgameai/mctsd/store"
)

func newDispatcher(t *testing.T) (*dispatcher.Dispatcher, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return dispatcher.New(store.NewStore(), zap.NewNop().Sugar(), &out), &out
}

func readLines(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	return lines
}

func runLine(t *testing.T, d *dispatcher.Dispatcher, out *bytes.Buffer, line string) map[string]interface{} {
	t.Helper()
	out.Reset()
	err := d.Run(context.Background(), strings.NewReader(line+"\n"))
	require.NoError(t, err)
	lines := readLines(t, out)
	require.Len(t, lines, 1)
	return lines[0]
}

func TestAddGameThenAddState(t *testing.T) {
	d, out := newDispatcher(t)

	resp := runLine(t, d, out, `{"id":1,"type":"add_game","data":{"type":"tic_tac_toe","data":{}}}`)
	assert.Equal(t, true, resp["success"])
	data := resp["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["gameID"])

	resp = runLine(t, d, out, `{"id":2,"type":"add_state","data":{"gameID":1}}`)
	assert.Equal(t, true, resp["success"])
	data = resp["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["stateID"])
	assert.EqualValues(t, 1, data["nextPlayer"])
}

func TestUnknownRequestTypeFails(t *testing.T) {
	d, out := newDispatcher(t)
	resp := runLine(t, d, out, `{"type":"not_a_route","data":{}}`)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["errMsg"], "unknown request type")
}

func TestMalformedJSONFails(t *testing.T) {
	d, out := newDispatcher(t)
	resp := runLine(t, d, out, `not json at all`)
	assert.Equal(t, false, resp["success"])
}

func TestTakeActionRejectsIllegalAction(t *testing.T) {
	d, out := newDispatcher(t)
	_ = runLine(t, d, out, `{"type":"add_game","data":{"type":"tic_tac_toe","data":{}}}`)
	_ = runLine(t, d, out, `{"type":"add_state","data":{"gameID":1}}`)

	resp := runLine(t, d, out, `{"type":"take_action","data":{"gameID":1,"stateID":1,"action":{"row":0,"col":0}}}`)
	require.Equal(t, true, resp["success"])

	resp = runLine(t, d, out, `{"type":"take_action","data":{"gameID":1,"stateID":1,"action":{"row":0,"col":0}}}`)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["errMsg"], "invalid")
}

func TestEchoRoundTripsData(t *testing.T) {
	d, out := newDispatcher(t)
	resp := runLine(t, d, out, `{"type":"echo","data":{"sleepTime":0,"data":{"x":1}}}`)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, resp["data"])
}

func TestRemoveGameCascadesUnknownID(t *testing.T) {
	d, out := newDispatcher(t)
	_ = runLine(t, d, out, `{"type":"add_game","data":{"type":"tic_tac_toe","data":{}}}`)
	_ = runLine(t, d, out, `{"type":"add_state","data":{"gameID":1}}`)
	_ = runLine(t, d, out, `{"type":"remove_game","data":{"gameID":1}}`)

	resp := runLine(t, d, out, `{"type":"take_action","data":{"gameID":1,"stateID":1,"action":{"row":0,"col":0}}}`)
	assert.Equal(t, false, resp["success"])
}

func TestConcurrentEchoRequestsAllComplete(t *testing.T) {
	d, out := newDispatcher(t)
	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, `{"id":`+strconv.Itoa(i)+`,"type":"echo","data":{"sleepTime":0,"data":`+strconv.Itoa(i)+`}}`)
	}
	err := d.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"))
	require.NoError(t, err)
	responses := readLines(t, out)
	assert.Len(t, responses, 8)
	for _, r := range responses {
		assert.Equal(t, true, r["success"])
	}
}

