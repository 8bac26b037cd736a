package denkmit

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cidOf(b byte) ID {
	return ID{b}
}

func keysOf(s *SortedItemsStore) []string {
	var out []string
	for it := range s.Items() {
		out = append(out, fmt.Sprintf("%d:%s", it.SortKey, it.Key))
	}
	return out
}

func TestSortedItemsOrder(t *testing.T) {
	t.Parallel()
	s := NewSortedItemsStore()
	s.Set(30, "c", cidOf(1), nil)
	s.Set(10, "a", cidOf(1), nil)
	s.Set(20, "b", cidOf(1), nil)
	s.Set(20, "aa", cidOf(1), nil)
	assert.Equal(t, []string{"10:a", "20:aa", "20:b", "30:c"}, keysOf(s))
	assert.Equal(t, 4, s.Len())

	it, ok := s.GetByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "aa", it.Key)
	assert.Equal(t, 1, it.Index)
	_, ok = s.GetByIndex(4)
	assert.False(t, ok)

	it, ok = s.Find(15)
	require.True(t, ok)
	assert.Equal(t, "aa", it.Key)
	it, ok = s.Find(31)
	assert.False(t, ok)
	assert.Equal(t, 4, it.Index)

	it, ok = s.FindPrevious(20)
	require.True(t, ok)
	assert.Equal(t, "b", it.Key)
	it, ok = s.FindPrevious(25)
	require.True(t, ok)
	assert.Equal(t, "b", it.Key)
	_, ok = s.FindPrevious(9)
	assert.False(t, ok)

	var from []string
	for it := range s.ItemsFrom(20) {
		from = append(from, it.Key)
	}
	assert.Equal(t, []string{"aa", "b", "c"}, from)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	_, ok = s.GetByKey("a")
	assert.False(t, ok)
}

func TestSortedItemsLastWriteWins(t *testing.T) {
	t.Parallel()
	s := NewSortedItemsStore()
	_, replaced, applied := s.Set(10, "a", cidOf(5), nil)
	assert.False(t, replaced)
	assert.True(t, applied)

	prev, replaced, applied := s.Set(40, "a", cidOf(1), nil)
	assert.True(t, applied)
	assert.True(t, replaced)
	assert.Equal(t, int64(10), prev)
	assert.Equal(t, 1, s.Len())

	_, _, applied = s.Set(5, "a", cidOf(9), nil)
	assert.False(t, applied, "older write")
	_, _, applied = s.Set(40, "a", cidOf(0), nil)
	assert.False(t, applied, "tie with smaller cid")
	_, _, applied = s.Set(40, "a", cidOf(1), nil)
	assert.False(t, applied, "same write twice")
	prev, replaced, applied = s.Set(40, "a", cidOf(2), nil)
	assert.True(t, applied, "tie with greater cid")
	assert.True(t, replaced)
	assert.Equal(t, int64(40), prev)

	it, ok := s.GetByKey("a")
	require.True(t, ok)
	assert.Equal(t, int64(40), it.SortKey)
	assert.Equal(t, cidOf(2), it.CID)
	assert.Equal(t, 1, s.Len())
}

// sortedModel is the expected live entry per key.
type sortedModel map[string]SortedItem

func (m sortedModel) items() []SortedItem {
	out := make([]SortedItem, 0, len(m))
	for _, it := range m {
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b SortedItem) int {
		if a.SortKey != b.SortKey {
			if a.SortKey < b.SortKey {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})
	for i := range out {
		out[i].Index = i
	}
	return out
}

type setCommand struct {
	sortKey int64
	key     string
	cid     ID
}

func (c setCommand) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*SortedItemsStore)
	s.Set(c.sortKey, c.key, c.cid, nil)
	return slices.Collect(s.Items())
}

func (c setCommand) NextState(state commands.State) commands.State {
	m := state.(sortedModel)
	if cur, ok := m[c.key]; ok {
		if cur.SortKey > c.sortKey || (cur.SortKey == c.sortKey && bytes.Compare(cur.CID, c.cid) >= 0) {
			return m
		}
	}
	next := make(sortedModel, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	next[c.key] = SortedItem{SortKey: c.sortKey, Key: c.key, CID: c.cid}
	return next
}

func (setCommand) PreCondition(commands.State) bool { return true }

func (c setCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	want := state.(sortedModel).items()
	got := result.([]SortedItem)
	if len(want) != len(got) {
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	for i := range want {
		if want[i].SortKey != got[i].SortKey || want[i].Key != got[i].Key ||
			!want[i].CID.Equal(got[i].CID) || got[i].Index != i {
			return &gopter.PropResult{Status: gopter.PropFalse}
		}
	}
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (c setCommand) String() string {
	return fmt.Sprintf("Set(%d, %q, %x)", c.sortKey, c.key, []byte(c.cid))
}

func TestSortedItemsModel(t *testing.T) {
	genSet := gopter.CombineGens(
		gen.Int64Range(0, 20),
		gen.IntRange(0, 5),
		gen.UInt8Range(0, 3),
	).Map(func(v []interface{}) commands.Command {
		return setCommand{
			sortKey: v[0].(int64),
			key:     fmt.Sprintf("key%d", v[1].(int)),
			cid:     cidOf(v[2].(uint8)),
		}
	})
	cmds := &commands.ProtoCommands{
		NewSystemUnderTestFunc: func(commands.State) commands.SystemUnderTest {
			return NewSortedItemsStore()
		},
		InitialStateGen: gen.Const(sortedModel{}),
		GenCommandFunc: func(commands.State) gopter.Gen {
			return genSet
		},
	}
	properties := gopter.NewProperties(defaultGopterParameters)
	properties.Property("one live entry per key in sort order", commands.Prop(cmds))
	properties.TestingRun(t)
}
