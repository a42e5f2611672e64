package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame encodes an LSP request/notification as wire bytes.
func frame(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(data), data))
}

// readAllMessages drains every framed message out of buf.
func readAllMessages(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	r := bufio.NewReader(buf)
	for {
		body, err := readMessage(r)
		if err != nil {
			break
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func TestInitializeRepliesWithCapabilities(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]interface{}{},
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())
	assert.True(t, s.IsInitialized())

	msgs := readAllMessages(t, out)
	require.Len(t, msgs, 1)
	assert.InDelta(t, 1, msgs[0]["id"], 0)
	result := msgs[0]["result"].(map[string]interface{})
	assert.Contains(t, result, "capabilities")
}

func TestDidOpenPublishesNoDiagnosticsForValidScript(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "textDocument/didOpen",
		"params": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri": "file:///a.rjscript", "text": "return 200, 1;", "version": 1,
			},
		},
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())

	msgs := readAllMessages(t, out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "textDocument/publishDiagnostics", msgs[0]["method"])
	params := msgs[0]["params"].(map[string]interface{})
	assert.Empty(t, params["diagnostics"])
}

func TestDidOpenPublishesParseErrorDiagnostic(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "textDocument/didOpen",
		"params": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri": "file:///bad.rjscript", "text": "return 200,", "version": 1,
			},
		},
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())

	msgs := readAllMessages(t, out)
	require.Len(t, msgs, 1)
	params := msgs[0]["params"].(map[string]interface{})
	diags := params["diagnostics"].([]interface{})
	require.Len(t, diags, 1)
	d := diags[0].(map[string]interface{})
	assert.InDelta(t, SeverityError, d["severity"], 0)
}

func TestDidChangePublishesTypeMismatchDiagnostic(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "textDocument/didOpen",
		"params": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri": "file:///c.rjscript", "text": "return 200, 1;", "version": 1,
			},
		},
	}))
	in.Write(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "textDocument/didChange",
		"params": map[string]interface{}{
			"textDocument":   map[string]interface{}{"uri": "file:///c.rjscript", "version": 2},
			"contentChanges": []map[string]interface{}{{"text": `let x: num = "oops";`}},
		},
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())

	msgs := readAllMessages(t, out)
	require.Len(t, msgs, 2)
	params := msgs[1]["params"].(map[string]interface{})
	diags := params["diagnostics"].([]interface{})
	require.NotEmpty(t, diags)
	d := diags[0].(map[string]interface{})
	assert.Equal(t, "type-mismatch", d["code"])
}

func TestShutdownAndExit(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 7, "method": "shutdown",
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())
	assert.True(t, s.IsShutdown())

	msgs := readAllMessages(t, out)
	require.Len(t, msgs, 1)
	assert.InDelta(t, 7, msgs[0]["id"], 0)
	assert.Nil(t, msgs[0]["result"])
}

func TestUnknownMethodRepliesWithError(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 3, "method": "textDocument/hover",
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())

	msgs := readAllMessages(t, out)
	require.Len(t, msgs, 1)
	errObj := msgs[0]["error"].(map[string]interface{})
	assert.InDelta(t, -32601, errObj["code"], 0)
}

func TestDidCloseForgetsDocument(t *testing.T) {
	in := bytes.NewBuffer(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "textDocument/didOpen",
		"params": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri": "file:///d.rjscript", "text": "return 200, 1;", "version": 1,
			},
		},
	}))
	in.Write(frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "textDocument/didClose",
		"params": map[string]interface{}{
			"textDocument": map[string]interface{}{"uri": "file:///d.rjscript"},
		},
	}))
	in.Write(frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "exit"}))

	out := &bytes.Buffer{}
	s := NewServer(in, out)
	require.NoError(t, s.Run())

	s.docsMu.Lock()
	_, ok := s.docs["file:///d.rjscript"]
	s.docsMu.Unlock()
	assert.False(t, ok)
}
