package bridgestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/flowsync/internal/units"
)

// Event names of the bridge protocol.
const (
	RequestEvent = "flowsync:request"
	ReplyEvent   = "flowsync:reply"
)

// Op is a bridge operation.
type Op string

const (
	OpFind      Op = "find"
	OpLabels    Op = "labels"
	OpAt        Op = "at"
	OpSet       Op = "set"
	OpInsertRow Op = "insert_row"
	OpLabelNode Op = "label_node"
	OpAddRecord Op = "add_record"
	OpRun       Op = "run"
)

// SetMode selects which engine setter a set request maps to.
type SetMode string

const (
	SetValue             SetMode = "value"
	SetValueAndUnit      SetMode = "value_unit"
	SetValueUnitAndBasis SetMode = "value_unit_basis"
)

// Request is one call to the bridge.
type Request struct {
	ID         string      `json:"id"`
	Op         Op          `json:"op"`
	Path       string      `json:"path,omitempty"`
	Index      int         `json:"index"`
	Dim        int         `json:"dim"`
	Label      string      `json:"label,omitempty"`
	RecordType string      `json:"record_type,omitempty"`
	Mode       SetMode     `json:"mode,omitempty"`
	Value      any         `json:"value,omitempty"`
	Unit       *units.Code `json:"unit,omitempty"`
	Basis      string      `json:"basis,omitempty"`
}

// NodeState is the bridge's view of one node.
type NodeState struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Value      any    `json:"value,omitempty"`
	Unit       string `json:"unit,omitempty"`
	Basis      string `json:"basis,omitempty"`
	RecordType string `json:"record_type,omitempty"`
}

// Reply answers a Request.
type Reply struct {
	ID     string     `json:"id"`
	Error  string     `json:"error,omitempty"`
	Node   *NodeState `json:"node,omitempty"`
	Labels []string   `json:"labels,omitempty"`
}

// Transport delivers requests to the bridge and waits for the reply.
type Transport interface {
	Call(ctx context.Context, req Request) (Reply, error)
	Close() error
}

// decodeReply converts a decoded event payload into a Reply.
func decodeReply(payload any) (Reply, error) {
	var reply Reply
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return reply, fmt.Errorf("re-encoding reply: %w", err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return reply, fmt.Errorf("decoding reply: %w", err)
	}
	return reply, nil
}

// encodeRequest renders a request as the generic map the socket emits.
func encodeRequest(req Request) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return out, nil
}
