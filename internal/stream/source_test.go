package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/openclaude/deltastream/internal/testutil"
)

// collectFragments drains Fragments and returns what it yielded.
func collectFragments(ctx context.Context, reader io.ReadCloser, options SourceOptions) ([]string, error) {
	var fragments []string
	for fragment, err := range Fragments(ctx, reader, options) {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

// TestFragmentsCarriesSplitRunes verifies multi-byte characters survive any read boundary.
func TestFragmentsCarriesSplitRunes(testingHandle *testing.T) {
	// Arrange
	text := "data: héllo → 世界\n"
	chunks := make([]string, 0, len(text))
	for index := 0; index < len(text); index++ {
		chunks = append(chunks, text[index:index+1])
	}
	source := newChunkedSource(chunks...)

	// Act
	fragments, err := collectFragments(context.Background(), source, SourceOptions{})

	// Assert
	testutil.RequireNoError(testingHandle, err, "read fragments")
	testutil.RequireEqual(testingHandle, strings.Join(fragments, ""), text, "decoded text mismatch")
	for _, fragment := range fragments {
		testutil.RequireTrue(testingHandle, !strings.ContainsRune(fragment, utf8.RuneError), "fragment contains a replacement character")
	}
	testutil.RequireTrue(testingHandle, source.closed.Load(), "source should be closed at end of stream")
}

// TestFragmentsHoldsBackUndelimitedText verifies only newline-terminated text is yielded mid-stream.
func TestFragmentsHoldsBackUndelimitedText(testingHandle *testing.T) {
	source := newChunkedSource("abc", "def\ngh", "i")

	fragments, err := collectFragments(context.Background(), source, SourceOptions{})
	testutil.RequireNoError(testingHandle, err, "read fragments")
	testutil.RequireEqual(testingHandle, fragments, []string{"abcdef\n", "ghi"}, "fragments mismatch")
}

// TestFragmentsOverflowPolicies covers flush, drop, and error handling of oversized lines.
func TestFragmentsOverflowPolicies(testingHandle *testing.T) {
	cases := []struct {
		name      string
		policy    OverflowPolicy
		want      []string
		wantErr   error
		overflows []int
	}{
		{name: "flush", policy: OverflowFlush, want: []string{"abcdefgh\n", "ij\nok\n"}, overflows: []int{8}},
		{name: "drop", policy: OverflowDrop, want: []string{"ok\n"}, overflows: []int{8}},
		{name: "error", policy: OverflowError, wantErr: ErrBufferOverflow, overflows: []int{8}},
	}

	for _, testCase := range cases {
		testingHandle.Run(testCase.name, func(subTest *testing.T) {
			// Arrange
			source := newChunkedSource("abcdefgh", "ij\nok\n")
			var overflows []int
			options := SourceOptions{
				MaxBufferSize: 4,
				Policy:        testCase.policy,
				OnOverflow:    func(size int) { overflows = append(overflows, size) },
			}

			// Act
			fragments, err := collectFragments(context.Background(), source, options)

			// Assert
			if testCase.wantErr != nil {
				testutil.RequireErrorIs(subTest, err, testCase.wantErr, "expected overflow error")
			} else {
				testutil.RequireNoError(subTest, err, "read fragments")
				testutil.RequireEqual(subTest, fragments, testCase.want, "fragments mismatch")
			}
			testutil.RequireEqual(subTest, overflows, testCase.overflows, "overflow observations mismatch")
			testutil.RequireTrue(subTest, source.closed.Load(), "source should be closed")
		})
	}
}

// TestFragmentsClosesOnBreak verifies an early consumer exit releases the source.
func TestFragmentsClosesOnBreak(testingHandle *testing.T) {
	source := newChunkedSource("a\n", "b\n", "c\n")

	for range Fragments(context.Background(), source, SourceOptions{}) {
		break
	}

	testutil.RequireTrue(testingHandle, source.closed.Load(), "source should be closed after break")
	testutil.RequireEqual(testingHandle, source.reads, 1, "no reads after break")
}

// TestFragmentsWrapsReadErrors verifies transport failures surface as TransportError.
func TestFragmentsWrapsReadErrors(testingHandle *testing.T) {
	readErr := errors.New("connection reset")
	source := newChunkedSource("a\n")
	source.finalErr = readErr

	fragments, err := collectFragments(context.Background(), source, SourceOptions{})

	testutil.RequireEqual(testingHandle, fragments, []string{"a\n"}, "fragments before failure")
	var transportErr *TransportError
	testutil.RequireTrue(testingHandle, errors.As(err, &transportErr), "expected TransportError")
	testutil.RequireEqual(testingHandle, transportErr.Op, "read", "op mismatch")
	testutil.RequireErrorIs(testingHandle, err, readErr, "cause should be preserved")
	testutil.RequireTrue(testingHandle, source.closed.Load(), "source should be closed after a read error")
}

// TestFragmentsStopsOnCancel verifies cancellation unblocks a pending read.
func TestFragmentsStopsOnCancel(testingHandle *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeReader, pipeWriter := io.Pipe()
	go func() {
		_, _ = pipeWriter.Write([]byte("a\n"))
	}()

	// Act
	var fragments []string
	var streamErr error
	for fragment, err := range Fragments(ctx, pipeReader, SourceOptions{}) {
		if err != nil {
			streamErr = err
			break
		}
		fragments = append(fragments, fragment)
		cancel()
	}

	// Assert
	testutil.RequireEqual(testingHandle, fragments, []string{"a\n"}, "fragments before cancel")
	testutil.RequireErrorIs(testingHandle, streamErr, context.Canceled, "expected cancellation")
	_, writeErr := pipeWriter.Write([]byte("late\n"))
	testutil.RequireErrorIs(testingHandle, writeErr, io.ErrClosedPipe, "reader side should be closed")
}

// TestParseOverflowPolicy covers accepted names.
func TestParseOverflowPolicy(testingHandle *testing.T) {
	policy, err := ParseOverflowPolicy("")
	testutil.RequireNoError(testingHandle, err, "empty policy")
	testutil.RequireEqual(testingHandle, policy, OverflowFlush, "default policy")

	policy, err = ParseOverflowPolicy("DROP")
	testutil.RequireNoError(testingHandle, err, "drop policy")
	testutil.RequireEqual(testingHandle, policy, OverflowDrop, "drop policy")

	_, err = ParseOverflowPolicy("truncate")
	testutil.RequireTrue(testingHandle, err != nil, "expected unknown policy error")
}
