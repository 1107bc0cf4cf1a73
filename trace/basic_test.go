package trace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantus-ai/webpilot/types"
)

const scenarioTrace = `{"type":"before","method":"goto","params":{"url":"https://example.com"},"timestamp":1000}
{"type":"after","method":"goto","params":{"url":"https://example.com"},"timestamp":1500}
{"type":"after","method":"click","params":{"selector":"#missing-button"},"timestamp":2000,"error":{"message":"Element not found"}}
`

const scenarioHAR = `{"log":{"version":"1.2","entries":[
  {"time":12.5,"request":{"method":"GET","url":"https://example.com/"},"response":{"status":200,"statusText":"OK"}},
  {"time":3.1,"request":{"method":"GET","url":"https://example.com/missing"},"response":{"status":404,"statusText":"Not Found"}}
]}}`

func TestParseSession_ScenarioSummary(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, filepath.Join(t.TempDir(), "trace.zip"), map[string]string{
		"trace.trace": scenarioTrace,
		"trace.har":   scenarioHAR,
	})

	st, err := ParseSession(path, nil)
	require.NoError(t, err)

	summary := st.Summarize()
	assert.Equal(t, 3, summary.TotalActions)
	assert.Equal(t, 1, summary.FailedActions)
	assert.Equal(t, 2, summary.TotalRequests)
	assert.Equal(t, 1, summary.FailedRequests)
}

func TestSessionTrace_EveryEventIsItsOwnSpan(t *testing.T) {
	t.Parallel()

	// The basic model records each qualifying before and after event as an
	// independent span; it never pairs them.
	path := writeArchive(t, filepath.Join(t.TempDir(), "trace.zip"), map[string]string{
		"trace.trace": `{"type":"before","method":"click","params":{"selector":"#b"},"timestamp":1}` + "\n" +
			`{"type":"after","method":"click","params":{"selector":"#b"},"timestamp":2,"duration":1}` + "\n",
	})

	st, err := ParseSession(path, nil)
	require.NoError(t, err)
	require.Len(t, st.Actions, 2)
	assert.False(t, st.Actions[0].Success, "a before event is never a success")
	assert.True(t, st.Actions[1].Success)
	assert.Equal(t, int64(1), st.Actions[1].Duration)
}

func TestSessionTrace_ConsoleErrorsAndUntypedEvents(t *testing.T) {
	t.Parallel()

	stream := `{"type":"console","text":"loaded"}` + "\n" +
		`{"type":"error","error":{"message":"bad state"}}` + "\n" +
		`{"method":"noTypeHere","params":{}}` + "\n" + // no type: ignored
		`{"type":"before","method":"goto"}` + "\n" // no params: ignored

	path := writeArchive(t, filepath.Join(t.TempDir(), "trace.zip"), map[string]string{
		"trace.trace": stream,
	})

	st, err := ParseSession(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"loaded"}, st.ConsoleLogs)
	assert.Equal(t, []string{"bad state"}, st.Errors)
	assert.Empty(t, st.Actions)
}

func TestSessionTrace_MalformedLineRecordedNotFatal(t *testing.T) {
	t.Parallel()

	stream := "###garbage###\n" + `{"type":"console","text":"ok"}` + "\n"
	path := writeArchive(t, filepath.Join(t.TempDir(), "trace.zip"), map[string]string{
		"trace.trace": stream,
	})

	st, err := ParseSession(path, nil)
	require.NoError(t, err)
	require.Len(t, st.ConsoleLogs, 1)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, "Failed to parse trace event: ###garbage###", st.Errors[0])

	summary := st.Summarize()
	assert.Equal(t, 1, summary.TotalErrors)
	assert.Equal(t, st.Errors[0], summary.ErrorSummary)
}

func TestSummarize_NoErrors(t *testing.T) {
	t.Parallel()

	st := &SessionTrace{}
	assert.Equal(t, "No errors", st.Summarize().ErrorSummary)
}

func TestHAR_FailureFlags(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		entry   HAREntry
		failure bool
	}{
		{"status 404", HAREntry{Response: HARResponse{Status: 404}}, true},
		{"status 200", HAREntry{Response: HARResponse{Status: 200}}, false},
		{"missing status", HAREntry{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.failure, requestFromEntry(tc.entry).Failure)
		})
	}
}

func TestParseSession_BadHARMember(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, filepath.Join(t.TempDir(), "trace.zip"), map[string]string{
		"trace.trace": "",
		"trace.har":   "not json",
	})

	_, err := ParseSession(path, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidFormat, types.GetErrorCode(err))
}
