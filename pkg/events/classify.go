package events

import (
	"bytes"
	"encoding/json"
)

// Wire shapes. Two historical encodings exist: the nested Bedrock
// converse-stream envelope ({"event": {...}}) and the flattened Strands
// event ({"data": ..., "current_tool_use": ..., "message": ..., ...}).
// Classify attempts both, nested first, in a fixed priority order.

type nestedToolUse struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
}

type nestedEvent struct {
	MessageStart *struct {
		Role string `json:"role"`
	} `json:"messageStart"`
	ContentBlockStart *struct {
		Start struct {
			ToolUse *nestedToolUse `json:"toolUse"`
		} `json:"start"`
		ContentBlockIndex int `json:"contentBlockIndex"`
	} `json:"contentBlockStart"`
	ContentBlockDelta *struct {
		Delta struct {
			Text    *string `json:"text"`
			ToolUse *struct {
				Input string `json:"input"`
			} `json:"toolUse"`
		} `json:"delta"`
		ContentBlockIndex int `json:"contentBlockIndex"`
	} `json:"contentBlockDelta"`
	ContentBlockStop *struct {
		ContentBlockIndex int `json:"contentBlockIndex"`
	} `json:"contentBlockStop"`
	MessageStop *struct {
		StopReason string `json:"stopReason"`
	} `json:"messageStop"`
	Metadata *nestedMetadata `json:"metadata"`
}

type nestedMetadata struct {
	Usage *struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		TotalTokens  int `json:"totalTokens"`
	} `json:"usage"`
	Metrics *struct {
		LatencyMs int64 `json:"latencyMs"`
	} `json:"metrics"`
}

type flatDelta struct {
	Text    *string `json:"text"`
	ToolUse *struct {
		Input string `json:"input"`
	} `json:"toolUse"`
}

type flatToolUse struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
}

type flatContentEntry struct {
	Text    *string `json:"text"`
	ToolUse *struct {
		ToolUseID string         `json:"toolUseId"`
		Name      string         `json:"name"`
		Input     map[string]any `json:"input"`
	} `json:"toolUse"`
	ToolResult *struct {
		ToolUseID string            `json:"toolUseId"`
		Status    string            `json:"status"`
		Content   []flatResultChunk `json:"content"`
	} `json:"toolResult"`
}

type flatResultChunk struct {
	Text *string         `json:"text"`
	JSON json.RawMessage `json:"json"`
}

type flatMessage struct {
	Role    string             `json:"role"`
	Content []flatContentEntry `json:"content"`
}

type flatResult struct {
	StopReason string `json:"stop_reason"`
	Metrics    *struct {
		AccumulatedUsage *struct {
			InputTokens  int `json:"inputTokens"`
			OutputTokens int `json:"outputTokens"`
			TotalTokens  int `json:"totalTokens"`
		} `json:"accumulated_usage"`
		CycleDurations []float64 `json:"cycle_durations"`
		ToolMetrics    map[string]struct {
			CallCount int     `json:"call_count"`
			TotalTime float64 `json:"total_time"`
		} `json:"tool_metrics"`
	} `json:"metrics"`
}

type flatEnvelope struct {
	Event           json.RawMessage `json:"event"`
	Message         *flatMessage    `json:"message"`
	Result          *flatResult     `json:"result"`
	Metadata        *nestedMetadata `json:"metadata"`
	CurrentToolUse  *flatToolUse    `json:"current_tool_use"`
	ToolStreamEvent json.RawMessage `json:"tool_stream_event"`
	Data            *string         `json:"data"`
	Delta           *flatDelta      `json:"delta"`
	StopReason      *string         `json:"stop_reason"`
}

// Classify maps one decoded JSON value to zero or more classified events.
// Inputs that match no known shape produce a single Unrecognized event.
func Classify(raw json.RawMessage) []Event {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	// A bare JSON string is the plain-text fallback path
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return []Event{PlainText{Text: text}}
		}
	}

	var env flatEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return []Event{Unrecognized{Raw: raw}}
	}

	var out []Event

	if len(env.Event) > 0 {
		out = append(out, classifyNested(env.Event)...)
	}
	if env.Message != nil {
		out = append(out, classifyMessage(env.Message))
	}
	if env.Result != nil {
		out = append(out, classifyResult(env.Result))
	}
	if env.Metadata != nil {
		out = append(out, metadataEvent(env.Metadata))
	}
	if env.CurrentToolUse != nil && env.CurrentToolUse.ToolUseID != "" {
		out = append(out, BlockStart{
			ToolID:   env.CurrentToolUse.ToolUseID,
			ToolName: env.CurrentToolUse.Name,
		})
	}
	if len(env.ToolStreamEvent) > 0 {
		out = append(out, classifyToolStream(env.ToolStreamEvent))
	}
	if env.Data != nil {
		out = append(out, TextDelta{Text: *env.Data})
	} else if env.Delta != nil {
		// The flattened encoding repeats the text in both data and delta;
		// delta only counts when data is absent
		if env.Delta.Text != nil {
			out = append(out, TextDelta{Text: *env.Delta.Text})
		} else if env.Delta.ToolUse != nil {
			out = append(out, ToolInputDelta{PartialJSON: env.Delta.ToolUse.Input})
		}
	}
	if env.StopReason != nil {
		out = append(out, MessageStop{StopReason: *env.StopReason})
	}

	if len(out) == 0 {
		return []Event{Unrecognized{Raw: raw}}
	}
	return out
}

func classifyNested(raw json.RawMessage) []Event {
	var ev nestedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return []Event{Unrecognized{Raw: raw}}
	}

	var out []Event

	if ev.MessageStart != nil {
		out = append(out, MessageStart{Role: ev.MessageStart.Role})
	}
	if ev.ContentBlockStart != nil {
		if tu := ev.ContentBlockStart.Start.ToolUse; tu != nil && tu.ToolUseID != "" {
			out = append(out, BlockStart{ToolID: tu.ToolUseID, ToolName: tu.Name})
		}
	}
	if ev.ContentBlockDelta != nil {
		if ev.ContentBlockDelta.Delta.Text != nil {
			out = append(out, TextDelta{Text: *ev.ContentBlockDelta.Delta.Text})
		} else if tu := ev.ContentBlockDelta.Delta.ToolUse; tu != nil {
			// No tool id on the wire here; the reducer routes the fragment
			// to the currently open tool block
			out = append(out, ToolInputDelta{PartialJSON: tu.Input})
		}
	}
	if ev.ContentBlockStop != nil {
		out = append(out, BlockStop{})
	}
	if ev.MessageStop != nil {
		out = append(out, MessageStop{StopReason: ev.MessageStop.StopReason})
	}
	if ev.Metadata != nil {
		out = append(out, metadataEvent(ev.Metadata))
	}

	if len(out) == 0 {
		return []Event{Unrecognized{Raw: raw}}
	}
	return out
}

func classifyMessage(msg *flatMessage) Event {
	complete := CompleteMessage{Role: msg.Role}

	for _, entry := range msg.Content {
		switch {
		case entry.ToolUse != nil:
			complete.ToolUses = append(complete.ToolUses, ToolUse{
				ToolUseID: entry.ToolUse.ToolUseID,
				Name:      entry.ToolUse.Name,
				Input:     entry.ToolUse.Input,
			})
		case entry.ToolResult != nil:
			complete.ToolResults = append(complete.ToolResults, ToolResult{
				ToolUseID: entry.ToolResult.ToolUseID,
				Content:   flattenResultChunks(entry.ToolResult.Content),
				IsError:   entry.ToolResult.Status == "error",
			})
		}
		// Text entries were already delivered as deltas during streaming
	}

	return complete
}

// classifyToolStream pulls the tool identity out of a streamed tool output
// envelope ({"tool_use":{"toolUseId":...},"data":...}); payloads of any other
// shape pass through whole
func classifyToolStream(raw json.RawMessage) Event {
	var envelope struct {
		ToolUse *struct {
			ToolUseID string `json:"toolUseId"`
		} `json:"tool_use"`
		Data json.RawMessage `json:"data"`
	}

	ts := ToolStream{Data: raw}
	if json.Unmarshal(raw, &envelope) == nil {
		if envelope.ToolUse != nil {
			ts.ToolID = envelope.ToolUse.ToolUseID
		}
		if len(envelope.Data) > 0 {
			ts.Data = envelope.Data
		}
	}
	return ts
}

func classifyResult(result *flatResult) Event {
	meta := Metadata{StopReason: result.StopReason}

	if m := result.Metrics; m != nil {
		if u := m.AccumulatedUsage; u != nil {
			meta.Usage = &TokenUsage{
				Input:  u.InputTokens,
				Output: u.OutputTokens,
				Total:  u.TotalTokens,
			}
		}
		meta.CycleDurations = m.CycleDurations
		if len(m.ToolMetrics) > 0 {
			meta.ToolMetrics = make(map[string]ToolMetric, len(m.ToolMetrics))
			for name, tm := range m.ToolMetrics {
				metric := ToolMetric{
					Invocations:          tm.CallCount,
					TotalDurationSeconds: tm.TotalTime,
				}
				if tm.CallCount > 0 {
					metric.AvgDurationSeconds = tm.TotalTime / float64(tm.CallCount)
				}
				meta.ToolMetrics[name] = metric
			}
		}
	}

	return meta
}

func metadataEvent(md *nestedMetadata) Event {
	meta := Metadata{}
	if md.Usage != nil {
		meta.Usage = &TokenUsage{
			Input:  md.Usage.InputTokens,
			Output: md.Usage.OutputTokens,
			Total:  md.Usage.TotalTokens,
		}
	}
	if md.Metrics != nil {
		latency := md.Metrics.LatencyMs
		meta.LatencyMs = &latency
	}
	return meta
}

func flattenResultChunks(chunks []flatResultChunk) string {
	var buf bytes.Buffer
	for _, chunk := range chunks {
		switch {
		case chunk.Text != nil:
			buf.WriteString(*chunk.Text)
		case len(chunk.JSON) > 0:
			buf.Write(chunk.JSON)
		}
	}
	return buf.String()
}
