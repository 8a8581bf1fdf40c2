package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("#0969da")
	colorMuted  = lipgloss.Color("#656d76")

	modelHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	runHeaderStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

// Console prints progress headers and generated responses to stdout.
type Console struct {
	w        io.Writer
	renderer *glamour.TermRenderer
}

// NewConsole writes to w. With render set, responses are rendered as
// markdown; if the renderer cannot be built, plain text is used.
func NewConsole(w io.Writer, render bool) *Console {
	c := &Console{w: w}
	if !render {
		return c
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		Logger.Warn("Markdown renderer unavailable, printing plain text", "error", err)
		return c
	}
	c.renderer = r
	return c
}

// ModelHeader prints "=== Model: name ===".
func (c *Console) ModelHeader(name string) {
	fmt.Fprintf(c.w, "\n%s\n", modelHeaderStyle.Render("=== Model: "+name+" ==="))
}

// RunHeader prints "--- Prompt: run ---".
func (c *Console) RunHeader(runID string) {
	fmt.Fprintf(c.w, "\n%s\n", runHeaderStyle.Render("--- Prompt: "+runID+" ---"))
}

// Response prints the generated text.
func (c *Console) Response(text string) {
	fmt.Fprintln(c.w, c.renderMarkdown(text))
}

func (c *Console) renderMarkdown(text string) string {
	if c.renderer == nil {
		return text
	}
	out, err := c.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
