package blocks

import (
	"encoding/json"

	"github.com/kestrelworks/agentchat/pkg/events"
)

// ref is one finalized position in the ordered block list. Text refs carry
// their content directly; tool refs resolve through the identity map so that
// later upserts show through without disturbing arrival order.
type ref struct {
	tool   bool
	toolID string
	text   string
}

// State is the in-progress reconstruction of a message's content blocks.
// It is a value: Reduce never mutates its input, so older states stay valid.
type State struct {
	order      []ref
	tools      map[string]ToolBlock
	inputBufs  map[string]string
	openText   string
	hasOpen    bool
	openToolID string
}

// NewState returns the empty reduction state
func NewState() State {
	return State{
		tools:     map[string]ToolBlock{},
		inputBufs: map[string]string{},
	}
}

func (s State) clone() State {
	next := s
	next.order = append([]ref(nil), s.order...)
	next.tools = make(map[string]ToolBlock, len(s.tools))
	for id, tool := range s.tools {
		next.tools[id] = tool
	}
	next.inputBufs = make(map[string]string, len(s.inputBufs))
	for id, buf := range s.inputBufs {
		next.inputBufs[id] = buf
	}
	return next
}

// Reduce applies one classified event and returns the next state
func Reduce(state State, event events.Event) State {
	switch e := event.(type) {
	case events.TextDelta:
		return reduceText(state, e.Text)
	case events.BlockStart:
		return reduceBlockStart(state, e)
	case events.ToolInputDelta:
		return reduceInputDelta(state, e)
	case events.BlockStop:
		return reduceBlockStop(state)
	case events.CompleteMessage:
		return reduceCompleteMessage(state, e)
	default:
		// MessageStart, MessageStop, Metadata, ToolStream, PlainText and
		// Unrecognized carry nothing for the block list
		return state
	}
}

func reduceText(state State, text string) State {
	if text == "" {
		return state
	}
	next := state.clone()
	next.openText += text
	next.hasOpen = true
	return next
}

func reduceBlockStart(state State, e events.BlockStart) State {
	if e.ToolID == "" {
		return state
	}
	if _, known := state.tools[e.ToolID]; known {
		// Duplicate start for a known id never creates a second block
		next := state.clone()
		next.openToolID = e.ToolID
		if e.ToolName != "" {
			tool := next.tools[e.ToolID]
			if tool.Name == "" {
				tool.Name = e.ToolName
				next.tools[e.ToolID] = tool
			}
		}
		return next
	}

	next := state.clone()
	next = flushOpenText(next)
	next.order = append(next.order, ref{tool: true, toolID: e.ToolID})
	next.tools[e.ToolID] = ToolBlock{
		ID:     e.ToolID,
		Name:   e.ToolName,
		Input:  map[string]any{},
		Status: ToolLoading,
	}
	next.openToolID = e.ToolID
	return next
}

func reduceInputDelta(state State, e events.ToolInputDelta) State {
	toolID := e.ToolID
	if toolID == "" {
		// The nested encoding addresses deltas by block index, not id;
		// they always belong to the most recently opened tool
		toolID = state.openToolID
	}
	if toolID == "" || e.PartialJSON == "" {
		return state
	}
	next := state.clone()
	next.inputBufs[toolID] += e.PartialJSON
	return next
}

func reduceBlockStop(state State) State {
	next := state.clone()
	next = applyBufferedInputs(next)
	for id, tool := range next.tools {
		if tool.Status == ToolLoading {
			tool.Status = ToolSuccess
			next.tools[id] = tool
		}
	}
	return next
}

func reduceCompleteMessage(state State, e events.CompleteMessage) State {
	next := state.clone()

	for _, use := range e.ToolUses {
		if use.ToolUseID == "" {
			continue
		}
		tool, known := next.tools[use.ToolUseID]
		if !known {
			// Never seen via streaming starts: append at the tail
			next = flushOpenText(next)
			next.order = append(next.order, ref{tool: true, toolID: use.ToolUseID})
			tool = ToolBlock{ID: use.ToolUseID, Status: ToolLoading}
		}
		if use.Name != "" {
			tool.Name = use.Name
		}
		if use.Input != nil {
			tool.Input = use.Input
		}
		next.tools[use.ToolUseID] = tool
	}

	for _, result := range e.ToolResults {
		tool, known := next.tools[result.ToolUseID]
		if !known {
			// Result for an unknown tool id has no block to update
			continue
		}
		tool.Result = result.Content
		if !tool.Status.Terminal() {
			if result.IsError {
				tool.Status = ToolError
			} else {
				tool.Status = ToolSuccess
			}
		} else if result.IsError {
			tool.Status = ToolError
		}
		next.tools[result.ToolUseID] = tool
	}

	return next
}

// MarkToolsFailed moves every non-terminal tool to the error state. Used when
// the stream dies so no block is left perpetually loading.
func MarkToolsFailed(state State) State {
	next := state.clone()
	for id, tool := range next.tools {
		if !tool.Status.Terminal() {
			tool.Status = ToolError
			next.tools[id] = tool
		}
	}
	return next
}

// Snapshot rebuilds the display-ready ordered block list from scratch:
// finalized refs resolved through the identity map, then the open text run
// so partial text is visible while streaming. The returned slice shares no
// structure with the state and can replace a previous snapshot wholesale.
func Snapshot(state State) []ContentBlock {
	out := make([]ContentBlock, 0, len(state.order)+1)
	for _, r := range state.order {
		if r.tool {
			if tool, ok := state.tools[r.toolID]; ok {
				out = append(out, tool)
			}
			continue
		}
		out = append(out, TextBlock{Text: r.text})
	}
	if state.hasOpen {
		out = append(out, TextBlock{Text: state.openText})
	}
	return out
}

// Finalize performs the stream-end close-out: flushes the open text run and
// applies any tool input still sitting in delta buffers, then returns the
// final immutable sequence alongside the closed state.
func Finalize(state State) ([]ContentBlock, State) {
	next := state.clone()
	next = applyBufferedInputs(next)
	next = flushOpenText(next)
	return Snapshot(next), next
}

func flushOpenText(state State) State {
	if !state.hasOpen {
		return state
	}
	state.order = append(state.order, ref{text: state.openText})
	state.openText = ""
	state.hasOpen = false
	return state
}

// applyBufferedInputs parses accumulated input_json_delta fragments for any
// tool whose input was never set by a complete message event. A backend that
// never sends the complete message still yields a populated input this way.
func applyBufferedInputs(state State) State {
	for id, buf := range state.inputBufs {
		tool, ok := state.tools[id]
		if !ok || buf == "" {
			continue
		}
		if len(tool.Input) > 0 {
			delete(state.inputBufs, id)
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(buf), &parsed); err != nil {
			// Incomplete fragment; keep buffering
			continue
		}
		tool.Input = parsed
		state.tools[id] = tool
		delete(state.inputBufs, id)
	}
	return state
}
