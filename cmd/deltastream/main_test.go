package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openclaude/deltastream/internal/config"
	"github.com/openclaude/deltastream/internal/llm/openai"
	"github.com/openclaude/deltastream/internal/streamjson"
	"github.com/openclaude/deltastream/internal/testutil"
)

const (
	roleChunk  = `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`
	helloChunk = `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-test","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`
	worldChunk = `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-test","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}`
	stopChunk  = `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-test","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`
	usageChunk = `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-test","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`
)

// recordedStream renders a complete OpenAI stream, optionally with extra raw lines before the finish.
func recordedStream(extraLines ...string) string {
	var builder strings.Builder
	builder.WriteString(": keep-alive\n\n")
	for _, payload := range []string{roleChunk, helloChunk, worldChunk} {
		builder.WriteString("data: " + payload + "\n\n")
	}
	for _, line := range extraLines {
		builder.WriteString(line + "\n\n")
	}
	builder.WriteString("data: " + stopChunk + "\n\n")
	builder.WriteString("data: " + usageChunk + "\n\n")
	builder.WriteString("data: [DONE]\n\n")
	return builder.String()
}

// isolateWorkspace points config discovery at an empty project and clears overrides.
func isolateWorkspace(testingHandle *testing.T) string {
	testingHandle.Helper()
	root := testingHandle.TempDir()
	testutil.RequireNoError(testingHandle, os.Mkdir(filepath.Join(root, ".git"), 0o755), "create .git")
	testingHandle.Setenv("HOME", filepath.Join(root, "home"))
	testingHandle.Setenv(config.EnvAPIBaseURL, "")
	testingHandle.Setenv(config.EnvAPIKey, "")
	testingHandle.Setenv(config.EnvModel, "")
	testingHandle.Chdir(root)
	return root
}

// writeConfig writes a private config file under dir.
func writeConfig(testingHandle *testing.T, dir string, contents string) string {
	testingHandle.Helper()
	path := filepath.Join(dir, "config.yaml")
	testutil.RequireNoError(testingHandle, os.WriteFile(path, []byte(contents), 0o600), "write config")
	return path
}

// executeCommand runs the CLI with args and stdin, capturing both output streams.
func executeCommand(stdin string, args ...string) (string, string, error) {
	rootCmd := newRootCommand()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeRecords parses JSONL output into generic records.
func decodeRecords(testingHandle *testing.T, output string) []map[string]any {
	testingHandle.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		testutil.RequireNoError(testingHandle, json.Unmarshal([]byte(line), &record), "decode record "+line)
		records = append(records, record)
	}
	testutil.RequireNoError(testingHandle, scanner.Err(), "scan records")
	return records
}

// decodeResult parses a single json result record.
func decodeResult(testingHandle *testing.T, output string) streamjson.ResultRecord {
	testingHandle.Helper()
	var record streamjson.ResultRecord
	testutil.RequireNoError(testingHandle, json.Unmarshal([]byte(strings.TrimSpace(output)), &record), "decode result record")
	return record
}

// TestParseCommandPrintsText replays a recorded file and prints the text and summary.
func TestParseCommandPrintsText(testingHandle *testing.T) {
	// Arrange
	root := isolateWorkspace(testingHandle)
	path := filepath.Join(root, "recorded.sse")
	testutil.RequireNoError(testingHandle, os.WriteFile(path, []byte(recordedStream()), 0o644), "write recording")

	// Act
	stdout, stderr, err := executeCommand("", "parse", path)

	// Assert
	testutil.RequireNoError(testingHandle, err, "parse command")
	testutil.RequireEqual(testingHandle, stdout, "Hello world\n", "stdout mismatch")
	testutil.RequireStringContains(testingHandle, stderr, "done ", "status missing")
	testutil.RequireStringContains(testingHandle, stderr, "finish=stop", "finish reason missing")
	testutil.RequireStringContains(testingHandle, stderr, "termination=sentinel", "termination missing")
	testutil.RequireStringContains(testingHandle, stderr, "tokens=4/2/6", "usage missing")
}

// TestParseCommandReadsStdinAsJSON folds stdin into a single result record.
func TestParseCommandReadsStdinAsJSON(testingHandle *testing.T) {
	isolateWorkspace(testingHandle)

	stdout, _, err := executeCommand(recordedStream(), "parse", "--output-format", "json")

	testutil.RequireNoError(testingHandle, err, "parse command")
	record := decodeResult(testingHandle, stdout)
	testutil.RequireEqual(testingHandle, record.Type, streamjson.TypeResult, "record type")
	testutil.RequireEqual(testingHandle, record.Subtype, "success", "subtype")
	testutil.RequireEqual(testingHandle, record.Result, "Hello world", "result text")
	testutil.RequireEqual(testingHandle, *record.FinishReason, "stop", "finish reason")
	testutil.RequireEqual(testingHandle, string(record.Termination), "sentinel", "termination")
	testutil.RequireEqual(testingHandle, *record.Usage, openai.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, "usage")
	testutil.RequireEqual(testingHandle, record.Stats.Attempts, 1, "attempts")
	testutil.RequireTrue(testingHandle, record.StreamID != "", "stream id should be set")
}

// TestParseCommandStreamJSONReportsMalformedFrames emits init, deltas, diagnostics, and result records.
func TestParseCommandStreamJSONReportsMalformedFrames(testingHandle *testing.T) {
	isolateWorkspace(testingHandle)

	stdout, _, err := executeCommand(recordedStream("data: {not json"), "parse", "--output-format", "stream-json", "--log-level", "error")

	testutil.RequireNoError(testingHandle, err, "parse command")
	records := decodeRecords(testingHandle, stdout)
	testutil.RequireTrue(testingHandle, len(records) >= 3, "expected init, deltas, and result")

	first := records[0]
	testutil.RequireEqual(testingHandle, first["type"], "system", "first record type")
	testutil.RequireEqual(testingHandle, first["subtype"], "init", "first record subtype")
	testutil.RequireEqual(testingHandle, first["source"], "stdin", "init source")
	testutil.RequireEqual(testingHandle, first["format"], "openai", "init format")

	last := records[len(records)-1]
	testutil.RequireEqual(testingHandle, last["type"], "result", "last record type")
	testutil.RequireEqual(testingHandle, last["result"], "Hello world", "result text")

	deltas := 0
	malformed := 0
	streamID := first["stream_id"]
	for _, record := range records {
		testutil.RequireEqual(testingHandle, record["stream_id"], streamID, "records share one stream id")
		switch {
		case record["type"] == "delta":
			deltas++
		case record["subtype"] == "malformed_frame":
			malformed++
			testutil.RequireEqual(testingHandle, record["payload"], "{not json", "malformed payload")
		}
	}
	testutil.RequireEqual(testingHandle, deltas, 4, "role, two content, and finish deltas")
	testutil.RequireEqual(testingHandle, malformed, 1, "malformed record count")
}

// TestDemoCommandRoundTrip streams generated text and a tool call.
func TestDemoCommandRoundTrip(testingHandle *testing.T) {
	cases := []struct {
		name   string
		format string
	}{
		{name: "openai", format: "openai"},
		{name: "anthropic", format: "anthropic"},
	}

	for _, testCase := range cases {
		testingHandle.Run(testCase.name, func(subTest *testing.T) {
			isolateWorkspace(subTest)

			stdout, _, err := executeCommand("", "demo", "--format", testCase.format, "--words", "20", "--tool-call", "--output-format", "json")

			testutil.RequireNoError(subTest, err, "demo command")
			record := decodeResult(subTest, stdout)
			testutil.RequireTrue(subTest, record.Result != "", "result text should not be empty")
			testutil.RequireEqual(subTest, *record.FinishReason, "tool_calls", "finish reason")
			testutil.RequireLen(subTest, record.ToolCalls, 1, "tool call count")
			testutil.RequireEqual(subTest, record.ToolCalls[0].Function.Name, "search_files", "tool name")
			testutil.RequireTrue(subTest, json.Valid([]byte(record.ToolCalls[0].Function.Arguments)), "tool arguments should be JSON")
		})
	}
}

// TestDemoCommandTruncates reports length when the response is cut off.
func TestDemoCommandTruncates(testingHandle *testing.T) {
	isolateWorkspace(testingHandle)

	stdout, _, err := executeCommand("", "demo", "--words", "30", "--max-words", "5", "--output-format", "json")

	testutil.RequireNoError(testingHandle, err, "demo command")
	record := decodeResult(testingHandle, stdout)
	testutil.RequireEqual(testingHandle, *record.FinishReason, "length", "finish reason")
	testutil.RequireLen(testingHandle, strings.Fields(record.Result), 5, "word count")
	testutil.RequireEqual(testingHandle, record.Usage.CompletionTokens, 5, "completion tokens")
}

// TestFetchCommandStreamsFromGateway sends the prompt and prints the streamed reply.
func TestFetchCommandStreamsFromGateway(testingHandle *testing.T) {
	// Arrange
	root := isolateWorkspace(testingHandle)
	var received openai.ChatRequest
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		authorization = request.Header.Get("Authorization")
		body, _ := io.ReadAll(request.Body)
		_ = json.Unmarshal(body, &received)
		writer.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(writer, recordedStream())
	}))
	defer server.Close()
	configPath := writeConfig(testingHandle, root, strings.Join([]string{
		"provider:",
		"  api_base_url: " + server.URL + "/v1",
		"  api_key: test-key",
		"  default_model: base-model",
		"  model_aliases:",
		"    fast: provider-fast-1",
	}, "\n"))

	// Act
	stdout, _, err := executeCommand("", "fetch", "--config", configPath, "--model", "fast", "--system-prompt", "be brief", "say", "hello")

	// Assert
	testutil.RequireNoError(testingHandle, err, "fetch command")
	testutil.RequireEqual(testingHandle, stdout, "Hello world\n", "stdout mismatch")
	testutil.RequireEqual(testingHandle, authorization, "Bearer test-key", "authorization header")
	testutil.RequireEqual(testingHandle, received.Model, "provider-fast-1", "alias should resolve")
	testutil.RequireTrue(testingHandle, received.Stream, "request should stream")
	testutil.RequireEqual(testingHandle, received.Messages, []openai.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "say hello"},
	}, "messages mismatch")
}

// TestFetchCommandRetriesServerErrors reopens the stream after a retryable status.
func TestFetchCommandRetriesServerErrors(testingHandle *testing.T) {
	// Arrange
	root := isolateWorkspace(testingHandle)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(writer, "overloaded", http.StatusServiceUnavailable)
			return
		}
		writer.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(writer, recordedStream())
	}))
	defer server.Close()
	configPath := writeConfig(testingHandle, root, strings.Join([]string{
		"provider:",
		"  api_base_url: " + server.URL,
		"  api_key: test-key",
		"  default_model: base-model",
		"retry:",
		"  max_attempts: 2",
		"  delay_ms: -1",
	}, "\n"))

	// Act
	stdout, _, err := executeCommand("", "fetch", "--config", configPath, "--output-format", "json", "hello")

	// Assert
	testutil.RequireNoError(testingHandle, err, "fetch command")
	record := decodeResult(testingHandle, stdout)
	testutil.RequireEqual(testingHandle, record.Result, "Hello world", "result text")
	testutil.RequireEqual(testingHandle, record.Stats.Attempts, 2, "attempts")
	testutil.RequireEqual(testingHandle, hits.Load(), int32(2), "server hits")
}

// TestFetchCommandRequiresProvider fails fast without gateway settings.
func TestFetchCommandRequiresProvider(testingHandle *testing.T) {
	isolateWorkspace(testingHandle)

	_, _, err := executeCommand("", "fetch", "hello")

	testutil.RequireErrorIs(testingHandle, err, config.ErrConfigInvalid, "expected invalid provider config")
	testutil.RequireStringContains(testingHandle, err.Error(), "provider.api_base_url is required", "missing field should be named")
}

// TestDoctorCommand checks permissions and provider settings.
func TestDoctorCommand(testingHandle *testing.T) {
	root := isolateWorkspace(testingHandle)
	configPath := writeConfig(testingHandle, root, strings.Join([]string{
		"provider:",
		"  api_base_url: https://gateway.example/v1",
		"  api_key: test-key",
		"  default_model: base-model",
	}, "\n"))

	stdout, _, err := executeCommand("", "doctor", "--config", configPath)
	testutil.RequireNoError(testingHandle, err, "doctor command")
	testutil.RequireStringContains(testingHandle, stdout, "config: "+configPath, "config path missing")
	testutil.RequireStringContains(testingHandle, stdout, ".env: (none)", "dotenv line missing")
	testutil.RequireStringContains(testingHandle, stdout, "OK: provider https://gateway.example/v1 model base-model", "status missing")

	testutil.RequireNoError(testingHandle, os.Chmod(configPath, 0o644), "loosen permissions")
	_, _, err = executeCommand("", "doctor", "--config", configPath)
	testutil.RequireTrue(testingHandle, err != nil, "expected permission error")
	testutil.RequireStringContains(testingHandle, err.Error(), "permissions too open", "permission error mismatch")
}

// TestVersionFlag prints the build version.
func TestVersionFlag(testingHandle *testing.T) {
	stdout, _, err := executeCommand("", "--version")

	testutil.RequireNoError(testingHandle, err, "version flag")
	testutil.RequireEqual(testingHandle, stdout, version+"\n", "version output")
}
