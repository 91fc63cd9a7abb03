package events

import "encoding/json"

// Kind discriminates classified stream events
type Kind int

const (
	KindUnrecognized Kind = iota
	KindMessageStart
	KindBlockStart
	KindTextDelta
	KindToolInputDelta
	KindBlockStop
	KindMessageStop
	KindCompleteMessage
	KindMetadata
	KindToolStream
	KindPlainText
)

// String returns the string representation of the event kind
func (k Kind) String() string {
	switch k {
	case KindMessageStart:
		return "message_start"
	case KindBlockStart:
		return "block_start"
	case KindTextDelta:
		return "text_delta"
	case KindToolInputDelta:
		return "tool_input_delta"
	case KindBlockStop:
		return "block_stop"
	case KindMessageStop:
		return "message_stop"
	case KindCompleteMessage:
		return "complete_message"
	case KindMetadata:
		return "metadata"
	case KindToolStream:
		return "tool_stream"
	case KindPlainText:
		return "plain_text"
	default:
		return "unrecognized"
	}
}

// Event is one classified action produced from a decoded stream line
type Event interface {
	Kind() Kind
}

// MessageStart signals the beginning of an assistant message
type MessageStart struct {
	Role string
}

func (MessageStart) Kind() Kind { return KindMessageStart }

// BlockStart opens a tool invocation block
type BlockStart struct {
	ToolID   string
	ToolName string
}

func (BlockStart) Kind() Kind { return KindBlockStart }

// TextDelta appends text to the open text run
type TextDelta struct {
	Text string
}

func (TextDelta) Kind() Kind { return KindTextDelta }

// ToolInputDelta carries a fragment of a tool's streamed input JSON
type ToolInputDelta struct {
	ToolID      string
	PartialJSON string
}

func (ToolInputDelta) Kind() Kind { return KindToolInputDelta }

// BlockStop signals that the current content block finished
type BlockStop struct{}

func (BlockStop) Kind() Kind { return KindBlockStop }

// MessageStop signals end of the assistant message
type MessageStop struct {
	StopReason string
}

func (MessageStop) Kind() Kind { return KindMessageStop }

// ToolUse is a complete tool invocation carried by a CompleteMessage
type ToolUse struct {
	ToolUseID string
	Name      string
	Input     map[string]any
}

// ToolResult is a tool's result carried by a CompleteMessage
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// CompleteMessage carries the full tool-use and tool-result entries of a
// finished model or tool turn
type CompleteMessage struct {
	Role        string
	ToolUses    []ToolUse
	ToolResults []ToolResult
}

func (CompleteMessage) Kind() Kind { return KindCompleteMessage }

// TokenUsage holds token accounting from the server
type TokenUsage struct {
	Input  int
	Output int
	Total  int
}

// ToolMetric holds per-tool invocation metrics
type ToolMetric struct {
	Invocations          int
	TotalDurationSeconds float64
	AvgDurationSeconds   float64
}

// Metadata carries whatever subset of metrics the server included
type Metadata struct {
	Usage          *TokenUsage
	LatencyMs      *int64
	ToolMetrics    map[string]ToolMetric
	CycleDurations []float64
	StopReason     string
}

func (Metadata) Kind() Kind { return KindMetadata }

// ToolStream carries raw tool streaming output; informational only
type ToolStream struct {
	ToolID string
	Data   json.RawMessage
}

func (ToolStream) Kind() Kind { return KindToolStream }

// PlainText is the fallback for lines that were not valid JSON
type PlainText struct {
	Text string
}

func (PlainText) Kind() Kind { return KindPlainText }

// Unrecognized preserves inputs that matched no known shape
type Unrecognized struct {
	Raw json.RawMessage
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }
