package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsMatchPythonParams(t *testing.T) {
	p := New()
	require.Equal(t, ConditionOR, p.Condition)
	require.Equal(t, StrategyExact, p.Strategy)
}

func TestMarshalJSONEmitsEmptyArraysNotNull(t *testing.T) {
	p := New()
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	terms := decoded["terms"].(map[string]any)
	require.Equal(t, []any{}, terms["writer_ids"])
	require.Equal(t, []any{}, terms["keys"])
}

func TestMarshalJSONIncludesRangeWhenSet(t *testing.T) {
	p := New()
	p.Range = &Range{Key: RangeKeyCreated, Start: time.Unix(1000000000, 0).UTC()}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	rng := decoded["range"].(map[string]any)
	require.Equal(t, "CREATED", rng["range_key"])
	require.NotEmpty(t, rng["after"])
	require.Nil(t, rng["before"])
}

func TestMarshalJSONOmitsRangeWhenNil(t *testing.T) {
	data, err := json.Marshal(New())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Nil(t, decoded["range"])
}

func TestMarshalJSONCarriesPlainTags(t *testing.T) {
	p := New()
	p.Plain = map[string]string{"category": "invoice"}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	terms := decoded["terms"].(map[string]any)
	tags := terms["tags"].(map[string]any)
	require.Equal(t, "invoice", tags["category"])
}
