package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/openclaude/deltastream/internal/stream"
)

// textPrinter renders streaming deltas as plain text.
type textPrinter struct {
	// out is the primary output writer for assistant text.
	out io.Writer
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

// newTextPrinter constructs a printer writing to out.
func newTextPrinter(out io.Writer) *textPrinter {
	return &textPrinter{out: out}
}

// OnEvent prints incremental text as it arrives.
func (p *textPrinter) OnEvent(event stream.Event) error {
	if event.Content == "" {
		return nil
	}
	if _, err := io.WriteString(p.out, event.Content); err != nil {
		return err
	}
	p.lineOpen = !strings.HasSuffix(event.Content, "\n")
	return nil
}

// EnsureNewline terminates a streaming line if one is active.
func (p *textPrinter) EnsureNewline() {
	if p == nil {
		return
	}
	if !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// WriteMarkdown renders content with glamour, wrapped to the terminal width when known.
func (p *textPrinter) WriteMarkdown(content string) error {
	options := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width := terminalWidth(p.out); width > 0 {
		options = append(options, glamour.WithWordWrap(width))
	}
	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	if _, err := io.WriteString(p.out, rendered); err != nil {
		return err
	}
	p.lineOpen = !strings.HasSuffix(rendered, "\n")
	return nil
}

// isTerminal reports whether out is an interactive terminal.
func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// terminalWidth returns the column count of out, or zero when unknown.
func terminalWidth(out io.Writer) int {
	if !isTerminal(out) {
		return 0
	}
	width, _, err := term.GetSize(int(out.(*os.File).Fd()))
	if err != nil {
		return 0
	}
	return width
}

// summaryRenderer writes the end-of-stream summary, colored on terminals.
type summaryRenderer struct {
	// out receives the summary.
	out io.Writer
	// styled enables lipgloss rendering.
	styled bool
	// ok styles a successful status.
	ok lipgloss.Style
	// failure styles a failed status.
	failure lipgloss.Style
	// label styles line prefixes.
	label lipgloss.Style
	// muted styles counters.
	muted lipgloss.Style
}

// newSummaryRenderer styles output only when out is a terminal.
func newSummaryRenderer(out io.Writer) *summaryRenderer {
	renderer := &summaryRenderer{out: out}
	if !isTerminal(out) {
		return renderer
	}
	renderer.styled = true
	renderer.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	renderer.failure = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	renderer.label = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	renderer.muted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	return renderer
}

// Write renders the summary for one stream.
func (r *summaryRenderer) Write(result stream.Result, stats stream.Stats, duration time.Duration, streamErr error) {
	fmt.Fprint(r.out, r.Render(result, stats, duration, streamErr))
}

// Render formats the summary lines.
func (r *summaryRenderer) Render(result stream.Result, stats stream.Stats, duration time.Duration, streamErr error) string {
	status := r.paint(r.ok, "done")
	if streamErr != nil {
		status = r.paint(r.failure, "failed")
	}

	finishReason := "none"
	if result.FinishReason != nil {
		finishReason = *result.FinishReason
	}
	fields := []string{
		"finish=" + finishReason,
		"termination=" + string(result.Termination),
		fmt.Sprintf("events=%d", stats.Events),
		fmt.Sprintf("malformed=%d", stats.Malformed),
		fmt.Sprintf("overflows=%d", stats.Overflows),
		fmt.Sprintf("attempts=%d", stats.Attempts),
	}
	if result.Usage != nil {
		fields = append(fields, fmt.Sprintf("tokens=%d/%d/%d", result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens))
	}
	fields = append(fields, "duration="+duration.Round(time.Millisecond).String())

	var builder strings.Builder
	fmt.Fprintf(&builder, "%s %s\n", status, r.paint(r.muted, strings.Join(fields, " ")))
	for _, call := range result.ToolCalls {
		fmt.Fprintf(&builder, "%s %s %s\n", r.paint(r.label, "tool"), call.Function.Name, call.Function.Arguments)
	}
	return builder.String()
}

// paint applies style when styling is enabled.
func (r *summaryRenderer) paint(style lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return style.Render(text)
}
