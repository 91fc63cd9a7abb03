package blocks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolStatus represents the lifecycle state of a tool invocation
type ToolStatus int

const (
	ToolLoading ToolStatus = iota
	ToolSuccess
	ToolError
)

// String returns the string representation of the status
func (s ToolStatus) String() string {
	switch s {
	case ToolLoading:
		return "loading"
	case ToolSuccess:
		return "success"
	case ToolError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions
func (s ToolStatus) Terminal() bool {
	return s == ToolSuccess || s == ToolError
}

func parseToolStatus(str string) (ToolStatus, error) {
	switch str {
	case "loading":
		return ToolLoading, nil
	case "success":
		return ToolSuccess, nil
	case "error":
		return ToolError, nil
	default:
		return ToolLoading, fmt.Errorf("unknown tool status %q", str)
	}
}

// ContentBlock is one contiguous unit of assistant output in display order:
// either a text run or a tool invocation record
type ContentBlock interface {
	isContentBlock()
}

// TextBlock is a run of assistant-generated prose
type TextBlock struct {
	Text string
}

func (TextBlock) isContentBlock() {}

// ToolBlock is one invocation of a named tool, keyed by a server-issued id
// unique within the message
type ToolBlock struct {
	ID     string
	Name   string
	Input  map[string]any
	Result string
	Status ToolStatus
}

func (ToolBlock) isContentBlock() {}

// Blocks is an ordered sequence of content blocks with JSON support
type Blocks []ContentBlock

type wireBlock struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Result string         `json:"result,omitempty"`
	Status string         `json:"status,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (b Blocks) MarshalJSON() ([]byte, error) {
	wire := make([]wireBlock, 0, len(b))
	for _, block := range b {
		switch v := block.(type) {
		case TextBlock:
			wire = append(wire, wireBlock{Type: "text", Text: v.Text})
		case ToolBlock:
			wire = append(wire, wireBlock{
				Type:   "tool",
				ID:     v.ID,
				Name:   v.Name,
				Input:  v.Input,
				Result: v.Result,
				Status: v.Status.String(),
			})
		default:
			return nil, fmt.Errorf("unknown content block type %T", block)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Blocks) UnmarshalJSON(data []byte) error {
	var wire []wireBlock
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := make(Blocks, 0, len(wire))
	for _, w := range wire {
		switch w.Type {
		case "text":
			out = append(out, TextBlock{Text: w.Text})
		case "tool":
			status, err := parseToolStatus(w.Status)
			if err != nil {
				return err
			}
			out = append(out, ToolBlock{
				ID:     w.ID,
				Name:   w.Name,
				Input:  w.Input,
				Result: w.Result,
				Status: status,
			})
		default:
			return fmt.Errorf("unknown content block type %q", w.Type)
		}
	}
	*b = out
	return nil
}

// Flatten returns the concatenation of all text runs in order
func Flatten(seq []ContentBlock) string {
	var buf strings.Builder
	for _, block := range seq {
		if text, ok := block.(TextBlock); ok {
			buf.WriteString(text.Text)
		}
	}
	return buf.String()
}
