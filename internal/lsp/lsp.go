// Package lsp implements a stdio JSON-RPC server speaking the subset of
// the Language Server Protocol needed to get live diagnostics for
// .rjscript buffers (initialize, shutdown, textDocument/didOpen,
// textDocument/didChange, textDocument/didClose, publishDiagnostics).
// Each buffer is re-lexed, re-parsed, and re-checked on every change;
// nothing here touches a RouteTable or serves requests.
//
// Per-document diagnostics are cached keyed by a digest of the buffer's
// own text, msgpack-encoded: an unchanged buffer re-submitted (e.g.
// after a no-op save round trip) skips re-checking entirely.
package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack"

	"github.com/rustyjsonserver/rustyjsonserver/internal/rjs"
)

// Position and Range mirror the LSP wire types: zero-based line/character
// offsets, unlike rjs.Pos which is one-based.
type Position struct {
	Line      int `msgpack:"line" json:"line"`
	Character int `msgpack:"character" json:"character"`
}

type Range struct {
	Start Position `msgpack:"start" json:"start"`
	End   Position `msgpack:"end" json:"end"`
}

// LSP DiagnosticSeverity values (textDocument/publishDiagnostics).
const (
	SeverityError   = 1
	SeverityWarning = 2
)

// Diagnostic is the LSP wire shape published for a buffer.
type Diagnostic struct {
	Range    Range  `msgpack:"range" json:"range"`
	Severity int    `msgpack:"severity" json:"severity"`
	Code     string `msgpack:"code,omitempty" json:"code,omitempty"`
	Message  string `msgpack:"message" json:"message"`
	Source   string `msgpack:"source" json:"source"`
}

type document struct {
	uri     string
	text    string
	version int
}

// Server is a single-connection stdio LSP server. It processes messages
// sequentially on the goroutine that calls Run, matching the interpreter's
// rule that no RJS state is shared across concurrent evaluations.
type Server struct {
	r *bufio.Reader
	w io.Writer
	// wmu serializes writes: publishDiagnostics notifications can be sent
	// from the same goroutine as request replies, but keeping a lock
	// here protects against future concurrent notification sources.
	wmu sync.Mutex

	docs   map[string]*document
	docsMu sync.Mutex

	diagCache   map[uint64][]byte
	diagCacheMu sync.Mutex

	initialized int32
	shutdown    int32
}

// NewServer wires a Server to the given transport, typically os.Stdin and
// os.Stdout.
func NewServer(r io.Reader, w io.Writer) *Server {
	return &Server{
		r:         bufio.NewReader(r),
		w:         w,
		docs:      map[string]*document{},
		diagCache: map[uint64][]byte{},
	}
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Run drains framed JSON-RPC messages from the transport until EOF or an
// exit notification. It returns nil on a clean shutdown/exit sequence.
func (s *Server) Run() error {
	for {
		body, err := readMessage(s.r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var msg rpcMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			continue
		}
		hasID := len(msg.ID) > 0 && string(msg.ID) != "null"

		switch msg.Method {
		case "initialize":
			atomic.StoreInt32(&s.initialized, 1)
			if hasID {
				s.reply(msg.ID, map[string]interface{}{
					"capabilities": map[string]interface{}{
						"textDocumentSync": map[string]interface{}{
							"openClose": true,
							"change":    1, // full-document sync
						},
					},
					"serverInfo": map[string]interface{}{
						"name": "rustyjsonserver-lsp",
					},
				})
			}
		case "textDocument/didOpen":
			var p struct {
				TextDocument struct {
					URI     string `json:"uri"`
					Text    string `json:"text"`
					Version int    `json:"version"`
				} `json:"textDocument"`
			}
			if json.Unmarshal(msg.Params, &p) == nil {
				s.setDocument(p.TextDocument.URI, p.TextDocument.Text, p.TextDocument.Version)
				s.publish(p.TextDocument.URI)
			}
		case "textDocument/didChange":
			var p struct {
				TextDocument struct {
					URI     string `json:"uri"`
					Version int    `json:"version"`
				} `json:"textDocument"`
				ContentChanges []struct {
					Text string `json:"text"`
				} `json:"contentChanges"`
			}
			if json.Unmarshal(msg.Params, &p) == nil && len(p.ContentChanges) > 0 {
				// Full-document sync: the last change event carries the
				// entire new buffer text.
				text := p.ContentChanges[len(p.ContentChanges)-1].Text
				s.setDocument(p.TextDocument.URI, text, p.TextDocument.Version)
				s.publish(p.TextDocument.URI)
			}
		case "textDocument/didClose":
			var p struct {
				TextDocument struct {
					URI string `json:"uri"`
				} `json:"textDocument"`
			}
			if json.Unmarshal(msg.Params, &p) == nil {
				s.docsMu.Lock()
				delete(s.docs, p.TextDocument.URI)
				s.docsMu.Unlock()
			}
		case "shutdown":
			atomic.StoreInt32(&s.shutdown, 1)
			if hasID {
				s.reply(msg.ID, nil)
			}
		case "exit":
			return nil
		default:
			if hasID {
				s.replyError(msg.ID, -32601, fmt.Sprintf("method not found: %s", msg.Method))
			}
		}
	}
}

// IsInitialized reports whether the initialize request has been handled.
func (s *Server) IsInitialized() bool { return atomic.LoadInt32(&s.initialized) == 1 }

// IsShutdown reports whether shutdown has been requested.
func (s *Server) IsShutdown() bool { return atomic.LoadInt32(&s.shutdown) == 1 }

func (s *Server) setDocument(uri, text string, version int) {
	s.docsMu.Lock()
	s.docs[uri] = &document{uri: uri, text: text, version: version}
	s.docsMu.Unlock()
}

// publish recomputes (or fetches from cache) diagnostics for uri and
// sends a textDocument/publishDiagnostics notification.
func (s *Server) publish(uri string) {
	s.docsMu.Lock()
	doc, ok := s.docs[uri]
	s.docsMu.Unlock()
	if !ok {
		return
	}

	diags := s.diagnose(doc.text)
	_ = s.notify("textDocument/publishDiagnostics", map[string]interface{}{
		"uri":         uri,
		"version":     doc.version,
		"diagnostics": diags,
	})
}

// diagnose re-lexes, re-parses, and re-checks text and converts the
// result into LSP diagnostics, consulting the digest-keyed cache first.
func (s *Server) diagnose(text string) []Diagnostic {
	key := xxhash.Sum64String(text)

	s.diagCacheMu.Lock()
	cached, hit := s.diagCache[key]
	s.diagCacheMu.Unlock()
	if hit {
		var diags []Diagnostic
		if err := msgpack.Unmarshal(cached, &diags); err == nil {
			return diags
		}
	}

	diags := computeDiagnostics(text)

	if encoded, err := msgpack.Marshal(diags); err == nil {
		s.diagCacheMu.Lock()
		s.diagCache[key] = encoded
		s.diagCacheMu.Unlock()
	}
	return diags
}

// computeDiagnostics runs the RJS front end over a script buffer and
// converts any lex/parse/check findings into LSP diagnostics. A lex or
// parse failure yields a single diagnostic at the failure position, since
// the checker never runs without a parsed Program.
func computeDiagnostics(text string) []Diagnostic {
	diags := []Diagnostic{}

	prog, err := rjs.Parse(text)
	if err != nil {
		pos := Position{}
		switch e := err.(type) {
		case *rjs.ParseError:
			pos = posToPosition(e.Pos)
		case *rjs.LexError:
			pos = posToPosition(e.Pos)
		}
		diags = append(diags, Diagnostic{
			Range:    Range{Start: pos, End: pos},
			Severity: SeverityError,
			Message:  err.Error(),
			Source:   "rustyjsonserver",
		})
		return diags
	}

	checked, _ := rjs.Check(prog)
	for _, d := range checked {
		sev := SeverityWarning
		if d.Severity == rjs.SeverityError {
			sev = SeverityError
		}
		pos := posToPosition(d.Pos)
		diags = append(diags, Diagnostic{
			Range:    Range{Start: pos, End: pos},
			Severity: sev,
			Code:     d.Kind,
			Message:  d.Message,
			Source:   "rustyjsonserver",
		})
	}
	return diags
}

// posToPosition converts a one-based rjs.Pos into a zero-based LSP
// Position.
func posToPosition(p rjs.Pos) Position {
	line := p.Line - 1
	if line < 0 {
		line = 0
	}
	col := p.Col - 1
	if col < 0 {
		col = 0
	}
	return Position{Line: line, Character: col}
}

func (s *Server) reply(id json.RawMessage, result interface{}) {
	_ = s.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	})
}

func (s *Server) replyError(id json.RawMessage, code int, message string) {
	_ = s.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error":   map[string]interface{}{"code": code, "message": message},
	})
}

func (s *Server) notify(method string, params interface{}) error {
	return s.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *Server) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return writeMessage(s.w, data)
}

// writeMessage frames a JSON-RPC message with a Content-Length header per
// the LSP base protocol.
func writeMessage(w io.Writer, body []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readMessage reads one framed JSON-RPC message: a set of "Name: Value"
// header lines terminated by a blank line, followed by a Content-Length
// sized body.
func readMessage(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:i]))
		val := strings.TrimSpace(line[i+1:])
		if name == "content-length" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, err
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("lsp: message missing Content-Length header")
	}
	buf := make([]byte, contentLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
