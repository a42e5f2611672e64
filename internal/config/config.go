// Package config turns a root ConfigNode JSON file into a RouteTable,
// recursively resolving `fref` file references, merging referenced node
// methods/children into the enclosing node, and compiling every route's
// script ahead of time.
//
// The merge is a list-append, not a deep key-merge: a node that pulls in
// an `fref` keeps its own methods/children first and appends the
// referenced file's. mapstructure.Decode materializes the one genuinely
// polymorphic shape in the schema, `script: str | {fref: path}`, out of a
// generic decoded value; everything else is decoded straight into typed
// structs via encoding/json so that StaticResponse bodies keep their
// declared key order (map[string]interface{} would not).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
	"github.com/rustyjsonserver/rustyjsonserver/internal/rjs"
)

// Segment is one piece of a route pattern: either a literal path
// component or a `:name` parameter capture.
type Segment struct {
	IsParam bool
	Name    string
}

// Literal builds a literal path segment.
func Literal(s string) Segment { return Segment{Name: s} }

// Param builds a `:name` parameter segment.
func Param(name string) Segment { return Segment{IsParam: true, Name: name} }

func (s Segment) String() string {
	if s.IsParam {
		return ":" + s.Name
	}
	return s.Name
}

// StaticResponse is a method handler that always returns the same body.
type StaticResponse struct {
	Status int
	Body   jsonval.Value
}

// Route is one resolved `(verb, pattern)` dispatch entry.
type Route struct {
	Verb    string
	Pattern []Segment
	Static  *StaticResponse
	Script  *rjs.CompiledScript

	// Source is the config file that declared this route's method, used
	// to point at both sides of a duplicate-route conflict.
	Source string
}

// RouteTable is the fully resolved, insertion-ordered result of a config
// build.
type RouteTable struct {
	Routes []Route
	Port   int
}

var validVerbs = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// ConfigLoadError reports a missing file, malformed JSON, shape
// mismatch, or an `fref` cycle.
type ConfigLoadError struct {
	Path    string
	Pointer string
	Message string
}

func (e *ConfigLoadError) Error() string {
	if e.Pointer != "" {
		return fmt.Sprintf("config %s (%s): %s", e.Path, e.Pointer, e.Message)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

// RouteBuildError reports a duplicate route, a bad verb, or a bad status
// code encountered while building the route table.
type RouteBuildError struct {
	Message string
}

func (e *RouteBuildError) Error() string { return e.Message }

// ScriptCompileError wraps a lex/parse/type-check failure with the file it
// came from.
type ScriptCompileError struct {
	File string
	Err  error
}

func (e *ScriptCompileError) Error() string { return fmt.Sprintf("%s: %v", e.File, e.Err) }
func (e *ScriptCompileError) Unwrap() error { return e.Err }

type rawMethod struct {
	Method   string       `json:"method"`
	Response *rawResponse `json:"response"`
	Script   interface{}  `json:"script"`

	// file is the absolute path of the config file that declared this
	// method, stamped during resolveNode before any fref merge. A
	// script fref resolves relative to file's directory rather than
	// wherever the enclosing node ended up after merging, and file
	// itself is carried onto the built Route so duplicate-route errors
	// can cite where each side of the conflict came from.
	file string
}

type rawResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type rawNode struct {
	Path      string      `json:"path"`
	Methods   []rawMethod `json:"methods"`
	Children  []rawNode   `json:"children"`
	Resources []rawNode   `json:"resources"`
	Fref      string      `json:"fref"`
	DollarRef string      `json:"$ref"`
}

// fref returns the node's file reference, accepting `$ref` as an alias
// for `fref`. A node specifying both is a ConfigLoadError.
func (n rawNode) fref() (string, error) {
	if n.Fref != "" && n.DollarRef != "" {
		return "", fmt.Errorf("node specifies both fref and $ref")
	}
	if n.Fref != "" {
		return n.Fref, nil
	}
	return n.DollarRef, nil
}

type rawRoot struct {
	Port      int       `json:"port"`
	Resources []rawNode `json:"resources"`
}

// scriptFref is the `{fref: path}` shape of a Method's `script` field,
// decoded from the generic JSON value via mapstructure. DollarRef is the
// accepted `$ref` alias.
type scriptFref struct {
	Fref      string `mapstructure:"fref"`
	DollarRef string `mapstructure:"$ref"`
}

// loader carries per-build state across the recursive resolution walk.
type loader struct {
	visited   map[string]bool
	filesRead []string
}

func (l *loader) canonicalize(path string) (string, error) {
	if canon, err := filepath.EvalSymlinks(path); err == nil {
		return canon, nil
	}
	return filepath.Clean(path), nil
}

// readFile returns absPath's raw bytes, registering it as read; with
// trackCycle set it also rejects it as a cycle if it was already opened
// anywhere in this build.
func (l *loader) readFile(absPath string, trackCycle bool) ([]byte, error) {
	if _, err := os.Stat(absPath); err != nil {
		return nil, &ConfigLoadError{Path: absPath, Message: "file not found"}
	}
	canon, err := l.canonicalize(absPath)
	if err != nil {
		return nil, &ConfigLoadError{Path: absPath, Message: err.Error()}
	}
	if trackCycle {
		if l.visited[canon] {
			return nil, &ConfigLoadError{Path: canon, Message: "fref cycle detected"}
		}
		l.visited[canon] = true
	}
	if !containsStr(l.filesRead, canon) {
		l.filesRead = append(l.filesRead, canon)
	}
	raw, err := os.ReadFile(canon)
	if err != nil {
		return nil, &ConfigLoadError{Path: canon, Message: err.Error()}
	}
	return raw, nil
}

func containsStr(haystack []string, s string) bool {
	for _, h := range haystack {
		if h == s {
			return true
		}
	}
	return false
}

func decodeNode(raw []byte, path string) (rawNode, error) {
	var n rawNode
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&n); err != nil {
		return rawNode{}, &ConfigLoadError{Path: path, Message: fmt.Sprintf("bad shape: %v", err)}
	}
	return n, nil
}

// Load resolves the config rooted at rootPath into a RouteTable plus the
// list of files read while building it (for the hot-reload watcher).
func Load(rootPath string) (*RouteTable, []string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, &ConfigLoadError{Path: rootPath, Message: err.Error()}
	}
	l := &loader{visited: map[string]bool{}}

	raw, err := l.readFile(abs, true)
	if err != nil {
		return nil, nil, err
	}
	var root rawRoot
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, nil, &ConfigLoadError{Path: abs, Message: fmt.Sprintf("bad shape: %v", err)}
	}
	port := root.Port
	if port == 0 {
		port = 8080
	}
	if port < 1 || port > 65535 {
		return nil, nil, &ConfigLoadError{Path: abs, Message: fmt.Sprintf("port %d out of range", port)}
	}

	var routes []Route
	for _, child := range root.Resources {
		resolved, err := l.resolveNode(child, abs)
		if err != nil {
			return nil, nil, err
		}
		childRoutes, err := l.buildRoutes(resolved, nil)
		if err != nil {
			return nil, nil, err
		}
		routes = append(routes, childRoutes...)
	}

	if err := checkDuplicates(routes); err != nil {
		return nil, nil, err
	}

	return &RouteTable{Routes: routes, Port: port}, l.filesRead, nil
}

// Build resolves the config rooted at rootPath the same way Load does, but
// instead of compiling routes it renders the fully-merged node tree back
// out as a single monolithic JSON document with every `fref`/`$ref`
// inlined — the `rustyjsonserver build` subcommand's output. Object keys
// are written in the same order the tree was resolved in (path, methods,
// children), so building the same input twice, or building an already-built
// monolithic file, yields byte-identical output.
func Build(rootPath string) ([]byte, []string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, &ConfigLoadError{Path: rootPath, Message: err.Error()}
	}
	l := &loader{visited: map[string]bool{}}

	raw, err := l.readFile(abs, true)
	if err != nil {
		return nil, nil, err
	}
	var root rawRoot
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, nil, &ConfigLoadError{Path: abs, Message: fmt.Sprintf("bad shape: %v", err)}
	}
	port := root.Port
	if port == 0 {
		port = 8080
	}
	if port < 1 || port > 65535 {
		return nil, nil, &ConfigLoadError{Path: abs, Message: fmt.Sprintf("port %d out of range", port)}
	}

	out := jsonval.NewObject()
	out.Set("port", jsonval.Number(float64(port)))

	resources := make([]jsonval.Value, 0, len(root.Resources))
	for _, child := range root.Resources {
		resolved, err := l.resolveNode(child, abs)
		if err != nil {
			return nil, nil, err
		}
		v, err := l.nodeToValue(resolved)
		if err != nil {
			return nil, nil, err
		}
		resources = append(resources, v)
	}
	out.Set("resources", jsonval.Array(resources))

	return jsonval.Encode(jsonval.Obj(out)), l.filesRead, nil
}

// nodeToValue renders an already fref-resolved node as a jsonval.Value,
// inlining every method's script source in place of a `{fref: path}`
// reference.
func (l *loader) nodeToValue(n rawNode) (jsonval.Value, error) {
	obj := jsonval.NewObject()
	if n.Path != "" {
		obj.Set("path", jsonval.String(n.Path))
	}

	if len(n.Methods) > 0 {
		methods := make([]jsonval.Value, 0, len(n.Methods))
		for _, m := range n.Methods {
			mv := jsonval.NewObject()
			mv.Set("method", jsonval.String(m.Method))
			switch {
			case m.Response != nil:
				rv := jsonval.NewObject()
				status := m.Response.Status
				if status == 0 {
					status = 200
				}
				rv.Set("status", jsonval.Number(float64(status)))
				body := jsonval.Null
				if len(m.Response.Body) > 0 {
					bv, err := jsonval.Decode(m.Response.Body)
					if err != nil {
						return jsonval.Value{}, &RouteBuildError{Message: fmt.Sprintf("bad response body: %v", err)}
					}
					body = bv
				}
				rv.Set("body", body)
				mv.Set("response", jsonval.Obj(rv))
			case m.Script != nil:
				src, _, err := l.resolveScript(m.Script, filepath.Dir(m.file))
				if err != nil {
					return jsonval.Value{}, &RouteBuildError{Message: err.Error()}
				}
				mv.Set("script", jsonval.String(src))
			default:
				return jsonval.Value{}, &RouteBuildError{Message: fmt.Sprintf("method %q must have exactly one of response/script", m.Method)}
			}
			methods = append(methods, jsonval.Obj(mv))
		}
		obj.Set("methods", jsonval.Array(methods))
	}

	if len(n.Children) > 0 {
		children := make([]jsonval.Value, 0, len(n.Children))
		for _, c := range n.Children {
			cv, err := l.nodeToValue(c)
			if err != nil {
				return jsonval.Value{}, err
			}
			children = append(children, cv)
		}
		obj.Set("children", jsonval.Array(children))
	}

	return jsonval.Obj(obj), nil
}

// resolveNode resolves n's `fref`, if any, merging the referenced file's
// methods/children after n's own, then recurses into n's own children
// using file — the config file that declared n. Children pulled in from
// the referenced file were already resolved against that file and are
// kept as they are. Each of n's own methods is
// stamped with file before any merge happens, so that once methods from
// different files end up on the same merged node, each one still
// remembers which file it was actually declared in.
func (l *loader) resolveNode(n rawNode, file string) (rawNode, error) {
	for i := range n.Methods {
		n.Methods[i].file = file
	}

	ref, err := n.fref()
	if err != nil {
		return rawNode{}, &ConfigLoadError{Message: err.Error()}
	}
	// [refStart, refEnd) is the range of n.Children taken from the
	// referenced file, already resolved against it.
	refStart, refEnd := 0, 0
	if ref != "" {
		refAbs := filepath.Join(filepath.Dir(file), ref)
		refRaw, err := l.readFile(refAbs, true)
		if err != nil {
			return rawNode{}, err
		}
		refNode, err := decodeNode(refRaw, refAbs)
		if err != nil {
			return rawNode{}, err
		}
		resolvedRef, err := l.resolveNode(refNode, refAbs)
		if err != nil {
			return rawNode{}, err
		}

		merged := n
		merged.Fref = ""
		merged.DollarRef = ""
		merged.Methods = append(append([]rawMethod{}, n.Methods...), resolvedRef.Methods...)
		refChildren := append(append([]rawNode{}, resolvedRef.Children...), resolvedRef.Resources...)
		merged.Children = append(append([]rawNode{}, n.Children...), refChildren...)
		refStart, refEnd = len(n.Children), len(n.Children)+len(refChildren)
		n = merged
	}

	if len(n.Resources) > 0 {
		n.Children = append(n.Children, n.Resources...)
		n.Resources = nil
	}

	resolved := make([]rawNode, 0, len(n.Children))
	for i, c := range n.Children {
		if i >= refStart && i < refEnd {
			resolved = append(resolved, c)
			continue
		}
		rc, err := l.resolveNode(c, file)
		if err != nil {
			return rawNode{}, err
		}
		resolved = append(resolved, rc)
	}
	n.Children = resolved
	return n, nil
}

func splitPath(p string) []Segment {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	var segs []Segment
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ":") {
			segs = append(segs, Param(part[1:]))
		} else {
			segs = append(segs, Literal(part))
		}
	}
	return segs
}

// buildRoutes walks a fully-resolved node tree, accumulating the effective
// pattern and emitting one Route per method, in source order. Each
// method's script fref is resolved against the directory it was
// declared in (m.file), not the directory of the root config file.
func (l *loader) buildRoutes(n rawNode, parentPattern []Segment) ([]Route, error) {
	pattern := append(append([]Segment{}, parentPattern...), splitPath(n.Path)...)

	seenVerbs := map[string]bool{}
	var routes []Route
	for _, m := range n.Methods {
		verb := strings.ToUpper(strings.TrimSpace(m.Method))
		if !validVerbs[verb] {
			return nil, &RouteBuildError{Message: fmt.Sprintf("unknown method verb %q", m.Method)}
		}
		if seenVerbs[verb] {
			return nil, &RouteBuildError{Message: fmt.Sprintf("duplicate method %q on path %q", verb, n.Path)}
		}
		seenVerbs[verb] = true

		route := Route{Verb: verb, Pattern: pattern, Source: m.file}
		hasResponse := m.Response != nil
		hasScript := m.Script != nil
		if hasResponse == hasScript {
			return nil, &RouteBuildError{Message: fmt.Sprintf("method %q must have exactly one of response/script", verb)}
		}

		if hasResponse {
			static, err := buildStaticResponse(m.Response)
			if err != nil {
				return nil, err
			}
			route.Static = static
		} else {
			src, sourceFile, err := l.resolveScript(m.Script, filepath.Dir(m.file))
			if err != nil {
				return nil, &RouteBuildError{Message: err.Error()}
			}
			compiled, err := rjs.Compile(src, sourceFile)
			if err != nil {
				return nil, &ScriptCompileError{File: sourceFile, Err: err}
			}
			route.Script = compiled
		}
		routes = append(routes, route)
	}

	for _, c := range n.Children {
		childRoutes, err := l.buildRoutes(c, pattern)
		if err != nil {
			return nil, err
		}
		routes = append(routes, childRoutes...)
	}
	return routes, nil
}

func buildStaticResponse(r *rawResponse) (*StaticResponse, error) {
	status := r.Status
	if status == 0 {
		status = 200
	}
	if status < 100 || status > 599 {
		return nil, &RouteBuildError{Message: fmt.Sprintf("status %d out of range", status)}
	}
	body := jsonval.Null
	if len(r.Body) > 0 {
		v, err := jsonval.Decode(r.Body)
		if err != nil {
			return nil, &RouteBuildError{Message: fmt.Sprintf("bad response body: %v", err)}
		}
		body = v
	}
	return &StaticResponse{Status: status, Body: body}, nil
}

// resolveScript returns the compiled-ready source text and a label for it:
// either the inline source string itself, or the contents of the file
// named by `{fref: path}`, resolved relative to dir and read as UTF-8.
func (l *loader) resolveScript(raw interface{}, dir string) (src string, sourceFile string, err error) {
	switch v := raw.(type) {
	case string:
		return v, "<inline script>", nil
	case map[string]interface{}:
		var sf scriptFref
		if err := mapstructure.Decode(v, &sf); err != nil {
			return "", "", fmt.Errorf("script object must be {fref: path}")
		}
		if sf.Fref != "" && sf.DollarRef != "" {
			return "", "", fmt.Errorf("script specifies both fref and $ref")
		}
		ref := sf.Fref
		if ref == "" {
			ref = sf.DollarRef
		}
		if ref == "" {
			return "", "", fmt.Errorf("script object must be {fref: path}")
		}
		abs := filepath.Join(dir, ref)
		raw, err := l.readFile(abs, false)
		if err != nil {
			return "", "", err
		}
		canon, _ := l.canonicalize(abs)
		return string(raw), canon, nil
	default:
		return "", "", fmt.Errorf("script must be a string or {fref: path}")
	}
}

// checkDuplicates enforces at most one Route per (verb, pattern).
func checkDuplicates(routes []Route) error {
	seen := map[string]Route{}
	for _, r := range routes {
		key := r.Verb + " " + patternKey(r.Pattern)
		if first, ok := seen[key]; ok {
			return &RouteBuildError{Message: fmt.Sprintf(
				"duplicate route %s declared in %s and %s", key, first.Source, r.Source,
			)}
		}
		seen[key] = r
	}
	return nil
}

func patternKey(pattern []Segment) string {
	parts := make([]string, len(pattern))
	for i, seg := range pattern {
		if seg.IsParam {
			parts[i] = ":" + strconv.Itoa(i)
		} else {
			parts[i] = seg.Name
		}
	}
	return "/" + strings.Join(parts, "/")
}
