package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultWorkersFillsOmittedField(t *testing.T) {
	in, err := json.Marshal(map[string]interface{}{"iterations": 50})
	require.NoError(t, err)

	out := applyDefaultWorkers(in, 4)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, float64(4), fields["workers"])
	assert.Equal(t, float64(50), fields["iterations"])
}

func TestApplyDefaultWorkersFillsZeroedField(t *testing.T) {
	in, err := json.Marshal(map[string]interface{}{"workers": 0})
	require.NoError(t, err)

	out := applyDefaultWorkers(in, 4)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, float64(4), fields["workers"])
}

func TestApplyDefaultWorkersLeavesExplicitValueAlone(t *testing.T) {
	in, err := json.Marshal(map[string]interface{}{"workers": 1})
	require.NoError(t, err)

	out := applyDefaultWorkers(in, 4)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, float64(1), fields["workers"])
}

func TestApplyDefaultWorkersPassesThroughMalformedData(t *testing.T) {
	in := json.RawMessage(`not json`)
	out := applyDefaultWorkers(in, 4)
	assert.Equal(t, in, out)
}
