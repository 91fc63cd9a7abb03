package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/chat"
)

// Renderer formats transcript messages for terminal output
type Renderer struct {
	userLabelStyle      lipgloss.Style
	assistantLabelStyle lipgloss.Style
	toolStyle           lipgloss.Style
	toolResultStyle     lipgloss.Style
	errorStyle          lipgloss.Style
	summaryStyle        lipgloss.Style

	chromaFormatter chroma.Formatter
	width           int
}

// New creates a renderer for the given terminal width
func New(width int) *Renderer {
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	return &Renderer{
		width:           width,
		chromaFormatter: formatter,

		userLabelStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF")),

		assistantLabelStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87D787")),

		// Tool invocations render as a bordered record, dimmer than prose
		toolStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(0, 1).
			Foreground(lipgloss.Color("#AAAAAA")),

		toolResultStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true),

		errorStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F5F")),

		summaryStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true),
	}
}

// Message renders a full transcript message with its role label
func (r *Renderer) Message(msg chat.Message) string {
	var buf strings.Builder

	if msg.IsUser() {
		buf.WriteString(r.userLabelStyle.Render("you"))
	} else {
		buf.WriteString(r.assistantLabelStyle.Render("agent"))
	}
	buf.WriteString("  ")

	if len(msg.ContentBlocks) == 0 {
		buf.WriteString(r.Text(msg.Content))
		return buf.String()
	}

	buf.WriteString("\n")
	for _, block := range msg.ContentBlocks {
		buf.WriteString(r.Block(block))
		buf.WriteString("\n")
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Block renders one content block
func (r *Renderer) Block(block blocks.ContentBlock) string {
	switch b := block.(type) {
	case blocks.TextBlock:
		return r.Text(b.Text)
	case blocks.ToolBlock:
		return r.tool(b)
	default:
		return ""
	}
}

func (r *Renderer) tool(b blocks.ToolBlock) string {
	var buf strings.Builder

	status := b.Status.String()
	if b.Status == blocks.ToolError {
		status = r.errorStyle.Render(status)
	}
	fmt.Fprintf(&buf, "tool %s [%s]", b.Name, status)

	if len(b.Input) > 0 {
		if input, err := json.Marshal(b.Input); err == nil {
			fmt.Fprintf(&buf, "\ninput: %s", string(input))
		}
	}
	if b.Result != "" {
		buf.WriteString("\n")
		buf.WriteString(r.toolResultStyle.Render(truncate(b.Result, 500)))
	}

	return r.toolStyle.Render(buf.String())
}

// Text normalizes literal \n escapes and highlights fenced code
func (r *Renderer) Text(text string) string {
	return r.highlightFences(NormalizeNewlines(text))
}

// Summary renders the post-message token/elapsed line
func (r *Renderer) Summary(msg chat.Message) string {
	var parts []string
	if msg.ElapsedSeconds > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", msg.ElapsedSeconds))
	}
	if md := msg.Metadata; md != nil {
		if md.TokenUsage != nil {
			parts = append(parts, fmt.Sprintf("tokens in=%d out=%d total=%d",
				md.TokenUsage.Input, md.TokenUsage.Output, md.TokenUsage.Total))
		}
		if md.StopReason != "" {
			parts = append(parts, "stop="+md.StopReason)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return r.summaryStyle.Render("[" + strings.Join(parts, ", ") + "]")
}

// Error renders an error line
func (r *Renderer) Error(text string) string {
	return r.errorStyle.Render(text)
}

// NormalizeNewlines replaces literal backslash-n sequences the runtime
// sometimes emits inside text deltas. Display-only; stored content keeps
// whatever arrived.
func NormalizeNewlines(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

// highlightFences applies syntax highlighting to ``` fenced code blocks
func (r *Renderer) highlightFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}

	var out strings.Builder
	segments := strings.Split(text, "```")
	for i, segment := range segments {
		if i%2 == 0 {
			out.WriteString(segment)
			continue
		}

		language := ""
		code := segment
		if newline := strings.IndexByte(segment, '\n'); newline >= 0 {
			language = strings.TrimSpace(segment[:newline])
			code = segment[newline+1:]
		}
		out.WriteString(r.highlight(code, language))
	}
	return out.String()
}

func (r *Renderer) highlight(code, language string) string {
	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := r.chromaFormatter.Format(&buf, styles.Get("monokai"), iterator); err != nil {
		return code
	}
	return buf.String()
}

// truncate cuts on a rune boundary so a multi-byte sequence is never split
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "…"
}
