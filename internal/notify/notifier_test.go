package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitMessage_FitsWithinLimit(t *testing.T) {
	chunks := splitMessage("hello\nworld", 100)
	require.Equal(t, []string{"hello\nworld"}, chunks)
}

func TestSplitMessage_BreaksOnLineBoundaries(t *testing.T) {
	lines := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		lines = append(lines, strings.Repeat("x", 500))
	}
	text := strings.Join(lines, "\n")

	chunks := splitMessage(text, 4000)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 4000)
	}
	// every original line must still appear intact in some chunk
	rejoined := strings.Join(chunks, "\n")
	require.Equal(t, text, rejoined)
}

func TestSplitMessage_HardSplitsOversizedSingleLine(t *testing.T) {
	line := strings.Repeat("a", 9000)
	chunks := splitMessage(line, 4000)
	require.Len(t, chunks, 3)
	for _, c := range chunks[:2] {
		require.Len(t, c, 4000)
	}
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	require.NotPanics(t, func() {
		n.Send("anything")
	})
}
