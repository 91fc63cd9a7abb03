package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelworks/agentchat/pkg/agentcore"
	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/events"
	"github.com/kestrelworks/agentchat/pkg/logger"
)

// ErrBusy signals a send while another stream is still in flight
var ErrBusy = errors.New("chat: a message stream is already in flight")

// DefaultGreeting is the canned first-turn prompt
const DefaultGreeting = "Hello! Please introduce yourself and tell me how you can help."

// UpdateFunc receives the full message list after every processed event so
// the render layer can replace its state wholesale
type UpdateFunc func(messages []Message)

// Manager owns one conversation session and drives the
// transport/classifier/reducer loop for each send
type Manager struct {
	client    *agentcore.Client
	greeting  string
	onUpdate  UpdateFunc
	mu        sync.Mutex
	sessionID string
	messages  []Message
	streaming bool
}

// NewManager creates a manager with a fresh session id
func NewManager(client *agentcore.Client) *Manager {
	return &Manager{
		client:    client,
		greeting:  DefaultGreeting,
		sessionID: uuid.NewString(),
	}
}

// SetGreeting overrides the canned greeting prompt
func (m *Manager) SetGreeting(greeting string) {
	if greeting != "" {
		m.greeting = greeting
	}
}

// SetUpdateFunc registers the live-render callback
func (m *Manager) SetUpdateFunc(f UpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = f
}

// SessionID returns the current session identifier
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// IsStreaming reports whether a send is in flight
func (m *Manager) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// Messages returns a snapshot of the conversation
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Restore seeds the conversation from persisted history
func (m *Manager) Restore(sessionID string, messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		return
	}
	if sessionID != "" {
		m.sessionID = sessionID
	}
	m.messages = append([]Message(nil), messages...)
}

// ClearMessages resets the conversation and regenerates the session id
func (m *Manager) ClearMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.sessionID = uuid.NewString()
}

// InitializeConversation sends the canned greeting as the first turn. The
// greeting itself stays out of the visible transcript; only the assistant's
// reply is recorded.
func (m *Manager) InitializeConversation(ctx context.Context, credential, actorID string) error {
	return m.send(ctx, m.greeting, credential, actorID, false)
}

// SendMessage appends a user message and streams the assistant reply,
// updating the message list after every processed event
func (m *Manager) SendMessage(ctx context.Context, text, credential, actorID string) error {
	return m.send(ctx, text, credential, actorID, true)
}

func (m *Manager) send(ctx context.Context, text, credential, actorID string, recordUser bool) error {
	m.mu.Lock()
	if m.streaming {
		m.mu.Unlock()
		return ErrBusy
	}
	m.streaming = true
	if recordUser {
		m.messages = append(m.messages, NewUserMessage(text))
	}
	assistantIdx := len(m.messages)
	m.messages = append(m.messages, NewAssistantMessage(""))
	sessionID := m.sessionID
	m.mu.Unlock()

	m.notify()

	start := time.Now()
	err := m.stream(ctx, text, credential, actorID, sessionID, assistantIdx, start)

	m.mu.Lock()
	m.streaming = false
	m.mu.Unlock()
	m.notify()

	return err
}

// stream drives one invocation: transport lines through the classifier into
// the reducer, with a full-list update after every event
func (m *Manager) stream(ctx context.Context, text, credential, actorID, sessionID string, assistantIdx int, start time.Time) error {
	lines, err := m.client.Invoke(ctx, agentcore.InvokeRequest{
		Prompt:      text,
		SessionID:   sessionID,
		ActorID:     actorID,
		BearerToken: credential,
	})
	if err != nil {
		logger.Error("Invoke failed: %v", err)
		m.failAssistant(assistantIdx, err, start)
		return err
	}

	state := blocks.NewState()
	meta := &Metadata{}
	var streamErr error

	for line := range lines {
		if line.Err != nil {
			streamErr = line.Err
			break
		}

		var evs []events.Event
		switch {
		case len(line.Raw) > 0:
			evs = events.Classify(line.Raw)
		case line.Text != "":
			evs = []events.Event{events.PlainText{Text: line.Text}}
		default:
			continue
		}

		for _, ev := range evs {
			switch e := ev.(type) {
			case events.Metadata:
				meta.Merge(e)
			case events.MessageStop:
				meta.StopReason = e.StopReason
			case events.Unrecognized:
				logger.Debug("Dropping unrecognized stream event: %s", string(e.Raw))
			case events.PlainText:
				// Malformed lines self-heal on the next one
				logger.Debug("Dropping non-event stream line: %q", e.Text)
			case events.ToolStream:
				logger.Debug("Tool stream output for %q (%d bytes)", e.ToolID, len(e.Data))
			default:
				state = blocks.Reduce(state, ev)
			}
		}

		m.updateAssistant(assistantIdx, blocks.Snapshot(state), meta, 0)
	}

	if streamErr != nil {
		state = blocks.MarkToolsFailed(state)
	}

	final, _ := blocks.Finalize(state)
	m.updateAssistant(assistantIdx, final, meta, time.Since(start).Seconds())

	if streamErr != nil {
		logger.Error("Stream terminated early: %v", streamErr)
		m.appendError(streamErr)
		return streamErr
	}

	return nil
}

// updateAssistant replaces the streaming assistant message's content with a
// freshly recomputed snapshot
func (m *Manager) updateAssistant(idx int, seq []blocks.ContentBlock, meta *Metadata, elapsed float64) {
	m.mu.Lock()
	if idx < len(m.messages) {
		msg := &m.messages[idx]
		msg.ContentBlocks = blocks.Blocks(seq)
		msg.Content = blocks.Flatten(seq)
		if elapsed > 0 {
			msg.ElapsedSeconds = elapsed
		}
		if !meta.IsEmpty() {
			metaCopy := *meta
			msg.Metadata = &metaCopy
		}
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) failAssistant(idx int, err error, start time.Time) {
	m.mu.Lock()
	if idx < len(m.messages) {
		msg := &m.messages[idx]
		msg.Content = fmt.Sprintf("Error: failed to reach the agent: %v", err)
		msg.ContentBlocks = blocks.Blocks{blocks.TextBlock{Text: msg.Content}}
		msg.ElapsedSeconds = time.Since(start).Seconds()
	}
	m.mu.Unlock()
	m.notify()
}

// appendError records a synthetic assistant message so the transcript shows
// the failure instead of hanging on a streaming state
func (m *Manager) appendError(err error) {
	m.mu.Lock()
	errMsg := NewAssistantMessage(fmt.Sprintf("Error: the response stream ended unexpectedly: %v", err))
	errMsg.ContentBlocks = blocks.Blocks{blocks.TextBlock{Text: errMsg.Content}}
	m.messages = append(m.messages, errMsg)
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	m.mu.Lock()
	callback := m.onUpdate
	var snapshot []Message
	if callback != nil {
		snapshot = make([]Message, len(m.messages))
		copy(snapshot, m.messages)
	}
	m.mu.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}
