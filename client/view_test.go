package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mahaj/chat-client/pkg/model"
	"github.com/stretchr/testify/require"
)

func TestTicks(t *testing.T) {
	require.Equal(t, "…", ticks(model.StatusSending))
	require.Equal(t, "…", ticks(model.StatusNone))
	require.Equal(t, "✓", ticks(model.StatusSent))
	require.Equal(t, "✓✓", ticks(model.StatusDelivered))
	require.Equal(t, ansiBlue+"✓✓"+ansiReset, ticks(model.StatusRead))
}

func TestSanitizeStripsMarkup(t *testing.T) {
	require.Equal(t, "hi there", sanitize(`<b>hi</b> <script>alert(1)</script>there`))
}

func TestRenderThread(t *testing.T) {
	require.Equal(t, "Nasir      hey (2)", renderThread(model.ThreadSummary{OtherID: "nasir", LastText: "hey", Unread: 2}))
	require.Equal(t, "Rafi       ok", renderThread(model.ThreadSummary{OtherID: "rafi", OtherName: "Rafi", LastText: "ok"}))
}

func TestPrinterPrintsOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "me")

	sending := model.Message{ID: "temp-1", TempID: "temp-1", From: "me", To: "nasir", Text: "hello", Status: model.StatusSending}
	p.Sync([]model.Message{sending}, false)
	p.Sync([]model.Message{sending}, false)

	acked := sending
	acked.ID, acked.Status = "42", model.StatusSent
	p.Sync([]model.Message{acked}, false)

	incoming := model.Message{ID: "43", From: "nasir", To: "me", Text: "<i>yo</i>"}
	p.Sync([]model.Message{acked, incoming}, true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "you: hello …")
	require.Equal(t, "  hello ✓", lines[1])
	require.Contains(t, lines[2], "Nasir: yo")
	require.Equal(t, "  (typing...)", lines[3])
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
