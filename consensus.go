package denkmit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// CheckPayload is the data a consensus rule sees for one candidate entry.
type CheckPayload struct {
	Now            int64  `json:"now"`
	DatasetCreator string `json:"datasetCreator"`
	LocalIdentity  string `json:"localIdentity"`
	EntryTimestamp int64  `json:"entryTimestamp"`
	EntryCreator   string `json:"entryCreator"`
}

// Consensus decides whether an entry may be written or merged.
type Consensus interface {
	Execute(ctx context.Context, payload CheckPayload) (bool, error)
}

// ConsensusFunc adapts a function to Consensus.
type ConsensusFunc func(ctx context.Context, payload CheckPayload) (bool, error)

func (f ConsensusFunc) Execute(ctx context.Context, payload CheckPayload) (bool, error) {
	return f(ctx, payload)
}

// TimestampRule accepts entries stamped no more than five minutes ahead of
// the local clock.
var TimestampRule = []byte(`{"<=":[{"var":"entryTimestamp"},{"+":[{"var":"now"},300000]}]}`)

// DefaultConsensusRecord is recorded in manifests created without an
// explicit rule.
func DefaultConsensusRecord() *ConsensusRecord {
	return &ConsensusRecord{
		Version:     ConsensusVersion,
		Name:        "timestamp",
		Description: "entries may not be stamped more than five minutes in the future",
		Logic:       TimestampRule,
	}
}

// RulesConsensus evaluates a JSON-logic rule against the check payload.
type RulesConsensus struct {
	logic []byte
}

func NewRulesConsensus(logic []byte) (*RulesConsensus, error) {
	if !json.Valid(logic) {
		return nil, fmt.Errorf("%w: consensus logic is not JSON", ErrConfiguration)
	}
	return &RulesConsensus{logic: logic}, nil
}

func (c *RulesConsensus) Execute(ctx context.Context, payload CheckPayload) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(c.logic), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("apply consensus logic: %w", err)
	}
	var result interface{}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return false, fmt.Errorf("consensus result: %w", err)
	}
	return truthy(result), nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	default:
		return true
	}
}
