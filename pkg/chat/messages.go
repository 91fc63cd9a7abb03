package chat

import (
	"time"

	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/events"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation. Assistant messages mutate while
// their stream is in flight and freeze when it ends.
type Message struct {
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	ContentBlocks  blocks.Blocks `json:"content_blocks,omitempty"`
	ElapsedSeconds float64       `json:"elapsed_seconds,omitempty"`
	Metadata       *Metadata     `json:"metadata,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// NewUserMessage creates a user message
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// IsUser reports whether the message came from the user
func (m Message) IsUser() bool { return m.Role == RoleUser }

// IsAssistant reports whether the message came from the assistant
func (m Message) IsAssistant() bool { return m.Role == RoleAssistant }

// TokenUsage holds token accounting for one message
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ToolMetric holds per-tool invocation metrics
type ToolMetric struct {
	Invocations          int     `json:"invocations"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	AvgDurationSeconds   float64 `json:"avg_duration_seconds"`
}

// Metadata collects whatever metrics the server chose to send. All fields
// are optional and populate opportunistically as events arrive.
type Metadata struct {
	TokenUsage     *TokenUsage           `json:"token_usage,omitempty"`
	LatencyMs      *int64                `json:"latency_ms,omitempty"`
	ToolMetrics    map[string]ToolMetric `json:"tool_metrics,omitempty"`
	CycleDurations []float64             `json:"cycle_durations,omitempty"`
	StopReason     string                `json:"stop_reason,omitempty"`
}

// Merge folds one metadata event into the accumulated metadata. Token usage
// adds up across events; tool metrics and stop reason take the latest value.
func (m *Metadata) Merge(ev events.Metadata) {
	if ev.Usage != nil {
		if m.TokenUsage == nil {
			m.TokenUsage = &TokenUsage{}
		}
		m.TokenUsage.Input += ev.Usage.Input
		m.TokenUsage.Output += ev.Usage.Output
		m.TokenUsage.Total += ev.Usage.Total
	}
	if ev.LatencyMs != nil {
		latency := *ev.LatencyMs
		m.LatencyMs = &latency
	}
	if len(ev.ToolMetrics) > 0 {
		if m.ToolMetrics == nil {
			m.ToolMetrics = make(map[string]ToolMetric, len(ev.ToolMetrics))
		}
		for name, metric := range ev.ToolMetrics {
			m.ToolMetrics[name] = ToolMetric{
				Invocations:          metric.Invocations,
				TotalDurationSeconds: metric.TotalDurationSeconds,
				AvgDurationSeconds:   metric.AvgDurationSeconds,
			}
		}
	}
	if len(ev.CycleDurations) > 0 {
		m.CycleDurations = append(m.CycleDurations, ev.CycleDurations...)
	}
	if ev.StopReason != "" {
		m.StopReason = ev.StopReason
	}
}

// IsEmpty reports whether nothing was ever merged
func (m *Metadata) IsEmpty() bool {
	return m.TokenUsage == nil && m.LatencyMs == nil && len(m.ToolMetrics) == 0 &&
		len(m.CycleDurations) == 0 && m.StopReason == ""
}
