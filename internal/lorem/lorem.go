// Package lorem generates synthetic provider SSE streams filled with lorem ipsum text.
package lorem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"

	"github.com/openclaude/deltastream/internal/llm/openai"
	"github.com/openclaude/deltastream/internal/stream"
)

// DefaultModel is reported when Options.Model is empty.
const DefaultModel = "lorem-medium"

// Options shape a synthetic stream.
type Options struct {
	// Words is the approximate number of words to generate.
	Words int
	// MaxWords cuts the text off with finish reason "length" when positive.
	MaxWords int
	// Model is the reported model name.
	Model string
	// Format selects the wire format.
	Format stream.Format
	// WordsPerChunk is the number of words per delta frame.
	WordsPerChunk int
	// ToolCall appends a tool call after the text.
	ToolCall bool
	// MalformedEvery injects a malformed frame after every N content frames when positive.
	MalformedEvery int
	// PromptTokens is reported as prompt usage.
	PromptTokens int
	// Delay paces reads to mimic a live stream.
	Delay time.Duration
}

// Script is a generated stream and the values a correct parser must recover from it.
type Script struct {
	// Text is the generated content.
	Text string
	// FinishReason is the finish reason the stream ends with.
	FinishReason string
	// Usage is the token accounting the stream reports.
	Usage openai.Usage
	// ToolCall is the tool call the stream carries, if any.
	ToolCall *openai.ToolCall
	// Model is the reported model name.
	Model string
	// Malformed is the number of injected malformed frames.
	Malformed int
	// Events are the SSE event blocks, each ending in a blank line.
	Events []string
	// Delay paces reads.
	Delay time.Duration
}

// Wire returns the whole stream as one string.
func (script Script) Wire() string {
	return strings.Join(script.Events, "")
}

// Generator builds scripts from lorem ipsum text.
type Generator struct {
	generator *loremgen.Lorem
	now       func() time.Time
}

// NewGenerator returns a generator.
func NewGenerator() *Generator {
	return &Generator{generator: loremgen.New(), now: time.Now}
}

// Script generates one stream.
func (g *Generator) Script(options Options) (Script, error) {
	if options.Words <= 0 {
		options.Words = 60
	}
	if options.WordsPerChunk <= 0 {
		options.WordsPerChunk = 1
	}
	if options.Model == "" {
		options.Model = DefaultModel
	}
	if options.PromptTokens <= 0 {
		options.PromptTokens = 12
	}

	words := strings.Fields(g.generateTextWords(options.Words))
	finishReason := "stop"
	if options.MaxWords > 0 && len(words) > options.MaxWords {
		words = words[:options.MaxWords]
		finishReason = "length"
	}

	var toolCall *openai.ToolCall
	if options.ToolCall {
		toolCall = &openai.ToolCall{
			ID:   "call_" + uuid.NewString()[:8],
			Type: "function",
			Function: openai.ToolCallFunction{
				Name:      "search_files",
				Arguments: fmt.Sprintf(`{"query":%q,"max_results":10}`, strings.Join(words[:min(2, len(words))], " ")),
			},
		}
		if finishReason == "stop" {
			finishReason = "tool_calls"
		}
	}

	script := Script{
		FinishReason: finishReason,
		ToolCall:     toolCall,
		Model:        options.Model,
		Delay:        options.Delay,
		Usage: openai.Usage{
			PromptTokens:     options.PromptTokens,
			CompletionTokens: len(words),
			TotalTokens:      options.PromptTokens + len(words),
		},
	}
	chunks := chunkWords(words, options.WordsPerChunk)
	script.Text = strings.Join(chunks, "")

	encoder := wireEncoder{
		id:      "lorem-" + uuid.NewString(),
		model:   options.Model,
		created: g.now().Unix(),
	}
	var err error
	switch options.Format {
	case stream.FormatAnthropic:
		script.Events, script.Malformed, err = encoder.anthropic(chunks, options.MalformedEvery, script)
	default:
		script.Events, script.Malformed, err = encoder.openAI(chunks, options.MalformedEvery, script)
	}
	if err != nil {
		return Script{}, err
	}
	return script, nil
}

// Opener returns a stream.Opener that serves the script.
func (script Script) Opener() stream.Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return newPacedReader(ctx, script.Events, script.Delay), nil
	}
}

// generateTextWords generates lorem ipsum text with approximately targetWords words.
func (g *Generator) generateTextWords(targetWords int) string {
	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		sentence := g.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}

	return strings.TrimSpace(sb.String())
}

// chunkWords groups words into deltas that concatenate back to the space-joined text.
func chunkWords(words []string, perChunk int) []string {
	var chunks []string
	for start := 0; start < len(words); start += perChunk {
		end := min(start+perChunk, len(words))
		chunk := strings.Join(words[start:end], " ")
		if start > 0 {
			chunk = " " + chunk
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
