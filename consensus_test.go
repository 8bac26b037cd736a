package denkmit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRule(t *testing.T) {
	t.Parallel()
	rule, err := NewRulesConsensus(TimestampRule)
	require.NoError(t, err)
	now := int64(1_700_000_000_000)
	for _, tc := range []struct {
		ts   int64
		want bool
	}{
		{now - 1_000_000, true},
		{now, true},
		{now + 300_000, true},
		{now + 300_001, false},
		{now + 3_600_000, false},
	} {
		ok, err := rule.Execute(ctx, CheckPayload{Now: now, EntryTimestamp: tc.ts})
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "timestamp %d", tc.ts)
	}
}

func TestCreatorRule(t *testing.T) {
	t.Parallel()
	rule, err := NewRulesConsensus([]byte(`{"==":[{"var":"entryCreator"},{"var":"datasetCreator"}]}`))
	require.NoError(t, err)
	ok, err := rule.Execute(ctx, CheckPayload{EntryCreator: "alice", DatasetCreator: "alice"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rule.Execute(ctx, CheckPayload{EntryCreator: "bob", DatasetCreator: "alice"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewRulesConsensus([]byte(`{"==":`))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConsensusFunc(t *testing.T) {
	t.Parallel()
	var seen CheckPayload
	c := ConsensusFunc(func(_ context.Context, p CheckPayload) (bool, error) {
		seen = p
		return p.EntryTimestamp%2 == 0, nil
	})
	ok, err := c.Execute(ctx, CheckPayload{EntryTimestamp: 4, LocalIdentity: "me"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "me", seen.LocalIdentity)
	ok, err = c.Execute(ctx, CheckPayload{EntryTimestamp: 3})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	t.Parallel()
	assert.False(t, truthy(nil))
	assert.False(t, truthy(false))
	assert.False(t, truthy(0.0))
	assert.False(t, truthy(""))
	assert.False(t, truthy([]interface{}{}))
	assert.True(t, truthy(true))
	assert.True(t, truthy(2.0))
	assert.True(t, truthy("x"))
	assert.True(t, truthy(map[string]interface{}{}))
}
