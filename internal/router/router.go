// Package router dispatches requests against a config.RouteTable: an
// ordered linear scan, segment-for-segment pattern matching with
// parameter capture, and request-environment construction for dynamic
// routes.
//
// Matching is an ordered, first-match linear scan rather than a
// best-match trie — routes with the same verb and pattern shape are
// already rejected once, at config build time, but different patterns can
// still match one path (`/users/me` and `/users/:id`); the earlier route
// in table order wins.
package router

import (
	"mime"
	"strings"

	"github.com/rustyjsonserver/rustyjsonserver/internal/config"
	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
	"github.com/rustyjsonserver/rustyjsonserver/internal/rjs"
)

// RawRequest is the transport-agnostic input to Dispatch: whatever fronts
// this package (net/http, a test) fills it in from the wire request.
type RawRequest struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Query       map[string][]string
	Headers     map[string][]string
}

// Result is the outcome of a dispatch: an HTTP status and a JSON body.
type Result struct {
	Status int
	Body   jsonval.Value
}

// Dispatcher matches requests against a RouteTable and executes their
// handlers.
type Dispatcher struct {
	table *config.RouteTable
	host  rjs.Host
}

// New returns a Dispatcher over table, giving dynamic routes access to
// host's cache/DB/logger/sleeper built-ins.
func New(table *config.RouteTable, host rjs.Host) *Dispatcher {
	return &Dispatcher{table: table, host: host}
}

// Dispatch matches req against the route table in insertion order and
// executes the first route whose pattern and verb both match. A path match
// with no verb match yields 405; no path match at all yields 404.
func (d *Dispatcher) Dispatch(req RawRequest) Result {
	segs := splitPath(req.Path)
	method := strings.ToUpper(req.Method)

	pathMatched := false
	for _, route := range d.table.Routes {
		params, ok := matchPattern(route.Pattern, segs)
		if !ok {
			continue
		}
		pathMatched = true
		if route.Verb != method {
			continue
		}
		return d.execute(route, params, req)
	}

	if pathMatched {
		return Result{Status: 405, Body: errorBody("method not allowed")}
	}
	return Result{Status: 404, Body: errorBody("not found")}
}

func (d *Dispatcher) execute(route config.Route, params map[string]string, req RawRequest) Result {
	if route.Static != nil {
		return Result{Status: route.Static.Status, Body: route.Static.Body}
	}

	reqValue := buildReqValue(params, req)
	it := rjs.NewInterp(route.Script.Program, d.host)
	status, body, err := it.Run(reqValue)
	if err != nil {
		if d.host.Logger != nil {
			d.host.Logger.Print("script runtime error: ", err.Error())
		}
		return Result{Status: 500, Body: errorBody(err.Error())}
	}
	return Result{Status: status, Body: body}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	var segs []string
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		segs = append(segs, part)
	}
	return segs
}

// matchPattern checks pattern against segs segment-for-segment: Literal
// requires an exact match, Param matches any non-empty segment and binds
// its name.
func matchPattern(pattern []config.Segment, segs []string) (map[string]string, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if seg.IsParam {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = map[string]string{}
			}
			params[seg.Name] = segs[i]
			continue
		}
		if seg.Name != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// buildReqValue assembles the `req` object passed to a dynamic handler:
// body, params, query, and headers.
func buildReqValue(params map[string]string, req RawRequest) jsonval.Value {
	o := jsonval.NewObject()
	o.Set("body", parseBody(req.Body, req.ContentType))
	o.Set("params", stringMapToObj(params))
	o.Set("query", multiMapToObj(req.Query))
	o.Set("headers", multiMapToObj(lowerCaseKeys(req.Headers)))
	return jsonval.Obj(o)
}

func parseBody(body []byte, contentType string) jsonval.Value {
	if len(body) == 0 || !isJSONContentType(contentType) {
		return jsonval.Obj(jsonval.NewObject())
	}
	v, err := jsonval.Decode(body)
	if err != nil {
		return jsonval.Obj(jsonval.NewObject())
	}
	return v
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.EqualFold(mediaType, "application/json")
}

func stringMapToObj(m map[string]string) jsonval.Value {
	o := jsonval.NewObject()
	for k, v := range m {
		o.Set(k, jsonval.String(v))
	}
	return jsonval.Obj(o)
}

// multiMapToObj turns a repeated-value map (query params, headers) into an
// object: a single value becomes a str, repeats become a vec<str>.
func multiMapToObj(m map[string][]string) jsonval.Value {
	o := jsonval.NewObject()
	for k, vs := range m {
		if len(vs) == 0 {
			continue
		}
		if len(vs) == 1 {
			o.Set(k, jsonval.String(vs[0]))
			continue
		}
		items := make([]jsonval.Value, len(vs))
		for i, v := range vs {
			items[i] = jsonval.String(v)
		}
		o.Set(k, jsonval.Array(items))
	}
	return jsonval.Obj(o)
}

func lowerCaseKeys(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func errorBody(message string) jsonval.Value {
	o := jsonval.NewObject()
	o.Set("error", jsonval.String(message))
	return jsonval.Obj(o)
}
