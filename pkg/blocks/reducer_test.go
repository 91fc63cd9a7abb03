package blocks

import (
	"testing"

	"github.com/kestrelworks/agentchat/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reduceAll(state State, evs ...events.Event) State {
	for _, ev := range evs {
		state = Reduce(state, ev)
	}
	return state
}

func TestReduceText(t *testing.T) {
	t.Run("should concatenate deltas in arrival order", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.TextDelta{Text: "Hi"},
			events.TextDelta{Text: " there"},
			events.TextDelta{Text: "!"},
		)

		seq := Snapshot(state)
		require.Len(t, seq, 1)
		assert.Equal(t, TextBlock{Text: "Hi there!"}, seq[0])
	})

	t.Run("should not open a new text block between deltas", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.TextDelta{Text: "a"},
			events.TextDelta{Text: "b"},
		)
		final, _ := Finalize(state)
		assert.Len(t, final, 1)
	})

	t.Run("should ignore plain text fallback lines", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.TextDelta{Text: "a"},
			events.PlainText{Text: "noise"},
			events.TextDelta{Text: "b"},
		)
		assert.Equal(t, "ab", Flatten(Snapshot(state)))
	})

	t.Run("should ignore empty deltas", func(t *testing.T) {
		state := Reduce(NewState(), events.TextDelta{})
		assert.Empty(t, Snapshot(state))
	})
}

func TestReduceToolBlocks(t *testing.T) {
	t.Run("should open a new text block only after a tool interrupts", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.TextDelta{Text: "before"},
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.TextDelta{Text: "after"},
		)

		seq := Snapshot(state)
		require.Len(t, seq, 3)
		assert.Equal(t, TextBlock{Text: "before"}, seq[0])
		tool, ok := seq[1].(ToolBlock)
		require.True(t, ok)
		assert.Equal(t, "t1", tool.ID)
		assert.Equal(t, ToolLoading, tool.Status)
		assert.Equal(t, TextBlock{Text: "after"}, seq[2])
	})

	t.Run("should not duplicate a block on a repeated start", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
		)
		assert.Len(t, Snapshot(state), 1)
	})

	t.Run("should keep a tool's position across later upserts", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.TextDelta{Text: "trailing"},
			events.CompleteMessage{
				ToolUses: []events.ToolUse{{ToolUseID: "t1", Name: "lookup", Input: map[string]any{"q": "x"}}},
			},
		)

		seq := Snapshot(state)
		require.Len(t, seq, 2)
		tool := seq[0].(ToolBlock)
		assert.Equal(t, map[string]any{"q": "x"}, tool.Input)
	})

	t.Run("should append a never-streamed tool at the tail", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.TextDelta{Text: "text"},
			events.CompleteMessage{
				ToolUses: []events.ToolUse{{ToolUseID: "t9", Name: "late", Input: map[string]any{}}},
			},
		)

		seq := Snapshot(state)
		require.Len(t, seq, 2)
		assert.Equal(t, TextBlock{Text: "text"}, seq[0])
		assert.Equal(t, "t9", seq[1].(ToolBlock).ID)
	})

	t.Run("should drop a result for an unknown tool id", func(t *testing.T) {
		state := Reduce(NewState(), events.CompleteMessage{
			ToolResults: []events.ToolResult{{ToolUseID: "ghost", Content: "42"}},
		})
		assert.Empty(t, Snapshot(state))
	})
}

func TestStatusTransitions(t *testing.T) {
	t.Run("should mark loading tools success on block stop", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.BlockStop{},
		)
		tool := Snapshot(state)[0].(ToolBlock)
		assert.Equal(t, ToolSuccess, tool.Status)
	})

	t.Run("should mark a tool failed on an error result", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.CompleteMessage{
				ToolResults: []events.ToolResult{{ToolUseID: "t1", Content: "boom", IsError: true}},
			},
		)
		tool := Snapshot(state)[0].(ToolBlock)
		assert.Equal(t, ToolError, tool.Status)
		assert.Equal(t, "boom", tool.Result)
	})

	t.Run("should not leave terminal state on a later success signal", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.CompleteMessage{
				ToolResults: []events.ToolResult{{ToolUseID: "t1", Content: "boom", IsError: true}},
			},
			events.BlockStop{},
		)
		tool := Snapshot(state)[0].(ToolBlock)
		assert.Equal(t, ToolError, tool.Status)
	})

	t.Run("should fail all loading tools on stream death", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.BlockStart{ToolID: "t2", ToolName: "fetch"},
		)
		state = MarkToolsFailed(state)
		for _, block := range Snapshot(state) {
			assert.Equal(t, ToolError, block.(ToolBlock).Status)
		}
	})
}

func TestInputBuffering(t *testing.T) {
	t.Run("should assemble streamed input fragments at block stop", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.ToolInputDelta{PartialJSON: `{"q":`},
			events.ToolInputDelta{PartialJSON: `"x"}`},
			events.BlockStop{},
		)
		tool := Snapshot(state)[0].(ToolBlock)
		assert.Equal(t, map[string]any{"q": "x"}, tool.Input)
	})

	t.Run("should route unaddressed fragments to the open tool", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.ToolInputDelta{ToolID: "", PartialJSON: `{"a":1}`},
		)
		final, _ := Finalize(state)
		tool := final[0].(ToolBlock)
		assert.Equal(t, map[string]any{"a": float64(1)}, tool.Input)
	})

	t.Run("should prefer the complete message input over fragments", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.ToolInputDelta{PartialJSON: `{"partial":true}`},
			events.CompleteMessage{
				ToolUses: []events.ToolUse{{ToolUseID: "t1", Input: map[string]any{"q": "x"}}},
			},
			events.BlockStop{},
		)
		tool := Snapshot(state)[0].(ToolBlock)
		assert.Equal(t, map[string]any{"q": "x"}, tool.Input)
	})

	t.Run("should keep buffering an incomplete fragment", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
			events.ToolInputDelta{PartialJSON: `{"q":`},
			events.BlockStop{},
		)
		tool := Snapshot(state)[0].(ToolBlock)
		assert.Empty(t, tool.Input)
	})
}

func TestFinalize(t *testing.T) {
	t.Run("should include an open text run in the final sequence", func(t *testing.T) {
		state := reduceAll(NewState(),
			events.TextDelta{Text: "unterminated"},
		)
		final, _ := Finalize(state)
		require.Len(t, final, 1)
		assert.Equal(t, TextBlock{Text: "unterminated"}, final[0])
	})

	t.Run("should be stable when called on a closed state", func(t *testing.T) {
		state := reduceAll(NewState(), events.TextDelta{Text: "x"})
		first, closed := Finalize(state)
		second, _ := Finalize(closed)
		assert.Equal(t, first, second)
	})
}

func TestReducerPurity(t *testing.T) {
	t.Run("should never mutate the input state", func(t *testing.T) {
		base := reduceAll(NewState(),
			events.TextDelta{Text: "a"},
			events.BlockStart{ToolID: "t1", ToolName: "lookup"},
		)
		before := Snapshot(base)

		_ = reduceAll(base,
			events.TextDelta{Text: "zzz"},
			events.CompleteMessage{
				ToolResults: []events.ToolResult{{ToolUseID: "t1", Content: "42"}},
			},
		)

		assert.Equal(t, before, Snapshot(base))
	})
}
