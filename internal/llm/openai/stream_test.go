package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openclaude/deltastream/internal/testutil"
)

// TestOpenStreamReturnsBody verifies the request shape and that the SSE body is handed back untouched.
func TestOpenStreamReturnsBody(testingHandle *testing.T) {
	// Arrange a deterministic SSE server response.
	var received ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/chat/completions" {
			http.NotFound(responseWriter, request)
			return
		}
		if request.Header.Get("Authorization") != "Bearer key-1" {
			http.Error(responseWriter, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			http.Error(responseWriter, err.Error(), http.StatusBadRequest)
			return
		}
		responseWriter.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(responseWriter, "data: {\"id\":\"req-1\"}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-1", 5*time.Second)
	request := &ChatRequest{
		Model:    "model-x",
		Messages: []Message{{Role: "user", Content: "hello"}},
	}

	// Act.
	body, err := client.OpenStream(context.Background(), request)
	testutil.RequireNoError(testingHandle, err, "open stream")
	defer body.Close()
	raw, err := io.ReadAll(body)
	testutil.RequireNoError(testingHandle, err, "read stream body")

	// Assert.
	testutil.RequireStringContains(testingHandle, string(raw), "data: [DONE]", "expected sentinel in body")
	testutil.RequireTrue(testingHandle, received.Stream, "expected stream flag on request")
	testutil.RequireTrue(testingHandle, received.StreamOptions != nil && received.StreamOptions.IncludeUsage, "expected include_usage")
	testutil.RequireTrue(testingHandle, !request.Stream, "caller request must not be mutated")
}

// TestOpenStreamAPIError verifies non-2xx responses surface as APIError.
func TestOpenStreamAPIError(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		http.Error(responseWriter, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/chat/completions", "", 5*time.Second)
	_, err := client.OpenStream(context.Background(), &ChatRequest{Model: "m"})

	var apiErr *APIError
	testutil.RequireTrue(testingHandle, errors.As(err, &apiErr), "expected APIError")
	testutil.RequireEqual(testingHandle, apiErr.StatusCode, http.StatusTooManyRequests, "status mismatch")
	testutil.RequireTrue(testingHandle, apiErr.IsRetryable(), "429 should be retryable")
	testutil.RequireTrue(testingHandle, strings.Contains(apiErr.Body, "slow down"), "body mismatch")
}

// TestAPIErrorIsRetryable covers the status classification table.
func TestAPIErrorIsRetryable(testingHandle *testing.T) {
	cases := map[int]bool{
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
	}
	for status, want := range cases {
		apiErr := &APIError{StatusCode: status}
		testutil.AssertEqual(testingHandle, apiErr.IsRetryable(), want, fmt.Sprintf("status %d", status))
	}
}

// TestToolCallAccumulatorMergesByIndex verifies fragments merge in first-seen order.
func TestToolCallAccumulatorMergesByIndex(testingHandle *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Apply([]StreamToolCallDelta{
		{Index: 1, ID: "call-b", Function: StreamToolCallFunctionDelta{Name: "second"}},
		{Index: 0, ID: "call-a", Type: "function", Function: StreamToolCallFunctionDelta{Name: "first", Arguments: `{"a":`}},
	})
	acc.Apply([]StreamToolCallDelta{
		{Index: 0, Function: StreamToolCallFunctionDelta{Arguments: `1}`}},
	})

	calls := acc.ToolCalls()
	testutil.RequireEqual(testingHandle, acc.Len(), 2, "tool call count mismatch")
	testutil.RequireEqual(testingHandle, calls[0].ID, "call-b", "order should follow first appearance")
	testutil.RequireEqual(testingHandle, calls[0].Type, "function", "default type mismatch")
	testutil.RequireEqual(testingHandle, calls[1].Function.Arguments, `{"a":1}`, "arguments not concatenated")
}
