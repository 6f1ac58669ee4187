package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateStatus(t *testing.T) {
	ok := Outcome{Target: "a", Status: StatusSuccess}
	bad := Outcome{Target: "b", Status: StatusFailure}

	assert.Equal(t, StatusSuccess, AggregateStatus(nil))
	assert.Equal(t, StatusSuccess, AggregateStatus([]Outcome{ok, ok}))
	assert.Equal(t, StatusFailure, AggregateStatus([]Outcome{ok, bad}))
	assert.Equal(t, StatusFailure, AggregateStatus([]Outcome{bad}))
}

func TestResultSetJSONShape(t *testing.T) {
	rs := NewResultSet([]Outcome{
		{Target: "a", Status: StatusSuccess, Value: map[string]any{"stdout": "hi", "stderr": "", "exit_code": 0}},
		{Target: "b", Status: StatusFailure, Value: ErrorValue("boltserver/connect-error", "dial refused")},
	})
	assert.Equal(t, StatusFailure, rs.Status)

	raw, err := json.Marshal(rs)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "failure", decoded["status"])
	list, ok := decoded["result_set"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "a", first["target"])
	assert.Equal(t, "success", first["status"])
}

func TestErrorValueRoundTrip(t *testing.T) {
	value := ErrorValue("boltserver/task-error", "task exploded")
	assert.Equal(t, "boltserver/task-error", ErrorKind(value))
	assert.Equal(t, "", ErrorKind(map[string]any{"stdout": "fine"}))
}

func TestTargetAddr(t *testing.T) {
	assert.Equal(t, "node1:22", Target{Hostname: "node1"}.Addr(22))
	assert.Equal(t, "node1:2222", Target{Hostname: "node1", Port: 2222}.Addr(22))
	assert.Equal(t, "[::1]:5986", Target{Hostname: "::1"}.Addr(5986))
}
