package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kestrelworks/agentchat/pkg/agentcore"
	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/chat"
	"github.com/kestrelworks/agentchat/pkg/config"
	"github.com/kestrelworks/agentchat/pkg/history"
	"github.com/kestrelworks/agentchat/pkg/logger"
	"github.com/kestrelworks/agentchat/pkg/render"
	"github.com/spf13/viper"
)

// app wires the client, session manager, history store and renderer
type app struct {
	cfg      *config.Config
	manager  *chat.Manager
	store    *history.Store
	renderer *render.Renderer
	printer  *streamPrinter
}

func newApp(cfg *config.Config) (*app, error) {
	if cfg.Agent.Endpoint == "" && cfg.Agent.ARN == "" {
		return nil, errors.New("no agent configured: set agent.arn (with agent.region) or agent.endpoint")
	}
	if cfg.BearerToken() == "" {
		return nil, fmt.Errorf("no bearer token: export %s", cfg.Auth.BearerTokenEnv)
	}

	var client *agentcore.Client
	if cfg.Agent.Endpoint != "" {
		client = agentcore.NewClientWithEndpoint(cfg.Agent.Endpoint, cfg.Agent.Qualifier)
	} else {
		client = agentcore.NewClient(cfg.Agent.Region, cfg.Agent.ARN, cfg.Agent.Qualifier)
	}
	if cfg.Agent.Timeout > 0 {
		client.SetTimeout(cfg.Agent.Timeout)
	}

	manager := chat.NewManager(client)
	manager.SetGreeting(cfg.Session.Greeting)

	a := &app{
		cfg:      cfg,
		manager:  manager,
		renderer: render.New(100),
	}
	a.printer = newStreamPrinter(a.renderer, os.Stdout)
	manager.SetUpdateFunc(a.printer.Update)

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.store = store

		if viper.GetBool("continue") {
			sessionID, messages, err := store.LatestSession(context.Background())
			switch {
			case errors.Is(err, history.ErrNotFound):
				logger.Info("No stored session to continue")
			case err != nil:
				return nil, err
			default:
				manager.Restore(sessionID, messages)
				a.replay(messages)
			}
		}
	}

	return a, nil
}

// Close flushes history and releases resources
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	logger.Close()
}

// RunOnce sends a single prompt and prints the streamed reply
func (a *app) RunOnce(ctx context.Context, prompt string) error {
	if err := a.send(ctx, prompt); err != nil {
		return err
	}
	a.summary()
	return nil
}

// RunInteractive reads prompts from stdin until EOF or /quit
func (a *app) RunInteractive(ctx context.Context) error {
	if viper.GetBool("greet") {
		a.printer.BeginTurn()
		if err := a.manager.InitializeConversation(ctx, a.cfg.BearerToken(), a.cfg.Session.ActorID); err != nil {
			fmt.Println(a.renderer.Error(err.Error()))
		} else {
			a.finishTurn()
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			a.manager.ClearMessages()
			fmt.Println("session cleared")
			continue
		}

		if err := a.send(ctx, text); err != nil {
			fmt.Println(a.renderer.Error(err.Error()))
			continue
		}
		a.summary()
	}
	return scanner.Err()
}

func (a *app) send(ctx context.Context, text string) error {
	a.printer.BeginTurn()
	err := a.manager.SendMessage(ctx, text, a.cfg.BearerToken(), a.cfg.Session.ActorID)
	if err != nil {
		return err
	}
	a.finishTurn()
	return nil
}

// finishTurn prints the non-text remainder of the reply and saves history
func (a *app) finishTurn() {
	a.printer.EndTurn()

	if a.store != nil {
		if err := a.store.SaveSession(context.Background(), a.manager.SessionID(), a.manager.Messages()); err != nil {
			logger.Warn("Failed to persist session: %v", err)
		}
	}
}

func (a *app) summary() {
	messages := a.manager.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsAssistant() {
			if line := a.renderer.Summary(messages[i]); line != "" {
				fmt.Println(line)
			}
			return
		}
	}
}

// replay prints a restored transcript
func (a *app) replay(messages []chat.Message) {
	for _, msg := range messages {
		fmt.Println(a.renderer.Message(msg))
	}
}

// streamPrinter turns whole-list update callbacks into incremental output.
// Flattened text is append-only while a stream is live, so printing the
// suffix past the last seen length is safe — as long as the printed length
// is tracked per message, since a failed stream appends a fresh synthetic
// error message at the tail.
type streamPrinter struct {
	renderer    *render.Renderer
	out         io.Writer
	msgIndex    int
	printedLen  int
	printedTool map[string]bool
}

func newStreamPrinter(renderer *render.Renderer, out io.Writer) *streamPrinter {
	return &streamPrinter{
		renderer:    renderer,
		out:         out,
		msgIndex:    -1,
		printedTool: map[string]bool{},
	}
}

// BeginTurn resets per-turn print state
func (p *streamPrinter) BeginTurn() {
	p.msgIndex = -1
	p.printedLen = 0
	p.printedTool = map[string]bool{}
}

// Update prints newly arrived text from the streaming assistant message
func (p *streamPrinter) Update(messages []chat.Message) {
	idx := len(messages) - 1
	if idx < 0 {
		return
	}
	last := messages[idx]
	if !last.IsAssistant() {
		return
	}

	if idx != p.msgIndex {
		// A different message is now streaming; start its suffix from zero
		p.msgIndex = idx
		p.printedLen = 0
	}

	if len(last.Content) > p.printedLen {
		fmt.Fprint(p.out, render.NormalizeNewlines(last.Content[p.printedLen:]))
		p.printedLen = len(last.Content)
	}

	for _, block := range last.ContentBlocks {
		if tool, ok := block.(blocks.ToolBlock); ok && !p.printedTool[tool.ID] {
			fmt.Fprintf(p.out, "\n[tool: %s]\n", tool.Name)
			p.printedTool[tool.ID] = true
		}
	}
}

// EndTurn prints the completed tool records after the prose
func (p *streamPrinter) EndTurn() {
	fmt.Fprintln(p.out)
}
