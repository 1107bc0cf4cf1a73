package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseEvents_MalformedLineDoesNotAbort(t *testing.T) {
	t.Parallel()

	stream := "{not json at all\n" +
		`{"type":"console","text":"still here"}` + "\n"

	events, diagnostics := ParseEvents([]byte(stream))
	require.Len(t, events, 1)
	require.Len(t, diagnostics, 1)
	assert.Equal(t, "Failed to parse trace event: {not json at all", diagnostics[0])
	assert.Equal(t, "console", events[0].Type)
	assert.Equal(t, "still here", events[0].Extra["text"])
}

func TestParseEvents_BlankLinesSkipped(t *testing.T) {
	t.Parallel()

	stream := "\n  \n" + `{"type":"before","method":"goto","params":{},"timestamp":5}` + "\n\n"
	events, diagnostics := ParseEvents([]byte(stream))
	require.Empty(t, diagnostics)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5), events[0].Timestamp)
}

func TestRawEvent_KnownAndExtraFields(t *testing.T) {
	t.Parallel()

	line := `{"type":"after","method":"click","params":{"selector":"#a"},` +
		`"timestamp":10,"duration":3,"sessionId":"s1",` +
		`"error":{"message":"boom"},"custom":{"k":1}}`

	var event RawEvent
	require.NoError(t, json.Unmarshal([]byte(line), &event))
	assert.Equal(t, "after", event.Type)
	assert.Equal(t, "click", event.Method)
	assert.Equal(t, "#a", event.Params["selector"])
	assert.Equal(t, int64(10), event.Timestamp)
	require.NotNil(t, event.Duration)
	assert.Equal(t, int64(3), *event.Duration)
	assert.Equal(t, "s1", event.SessionID)
	assert.True(t, event.HasError())
	assert.Contains(t, event.Extra, "custom")
}

func TestRawEvent_MissingOptionalFields(t *testing.T) {
	t.Parallel()

	var event RawEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"before"}`), &event))
	assert.Nil(t, event.Duration)
	assert.False(t, event.HasError())
	assert.Empty(t, event.Method)
}

// Valid events always survive a stream regardless of how much garbage or
// blank padding surrounds them, and every garbage line yields exactly one
// diagnostic.
func TestParseEvents_ResilienceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numValid := rapid.IntRange(0, 20).Draw(rt, "numValid")
		var lines []string
		garbage := 0

		for i := 0; i < numValid; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("pad_%d", i)) {
			case 0:
				lines = append(lines, "")
			case 1:
				lines = append(lines, "{"+rapid.StringMatching(`[a-z ]{0,12}`).Draw(rt, fmt.Sprintf("junk_%d", i)))
				garbage++
			}
			lines = append(lines, fmt.Sprintf(`{"type":"console","text":"msg-%d"}`, i))
		}

		events, diagnostics := ParseEvents([]byte(strings.Join(lines, "\n")))
		if len(events) != numValid {
			rt.Fatalf("expected %d events, got %d", numValid, len(events))
		}
		if len(diagnostics) != garbage {
			rt.Fatalf("expected %d diagnostics, got %d", garbage, len(diagnostics))
		}
		for i, event := range events {
			if event.Extra["text"] != fmt.Sprintf("msg-%d", i) {
				rt.Fatalf("event order broken at %d: %v", i, event.Extra["text"])
			}
		}
	})
}
