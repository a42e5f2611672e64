package rjs

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
)

// Host bundles the built-in services a running script can reach: the
// process-wide cache, the JSON-table database, the log sink and a sleep
// implementation (swappable in tests).
type Host struct {
	Cache  CacheStore
	DB     DBStore
	Logger Logger
	Sleep  Sleeper
}

// CompiledScript is an AST plus its source-file provenance, built once at
// config-resolve time and re-used across requests.
type CompiledScript struct {
	Program    *Program
	SourceFile string
	Diagnostics []Diagnostic
}

// Compile lexes, parses and type-checks src, returning a CompiledScript. A
// ScriptCompileError-shaped error is returned on any lex/parse/check
// failure; diagnostics from a successful check (warnings) are still
// attached to the result.
func Compile(src, sourceFile string) (*CompiledScript, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	diags, err := Check(prog)
	if err != nil {
		return nil, err
	}
	return &CompiledScript{Program: prog, SourceFile: sourceFile, Diagnostics: diags}, nil
}

// Interp evaluates a CompiledScript's Program against a request environment.
type Interp struct {
	prog  *Program
	funcs map[string]*FuncDecl
	host  Host
}

// NewInterp returns an Interp for prog bound to host.
func NewInterp(prog *Program, host Host) *Interp {
	it := &Interp{prog: prog, funcs: map[string]*FuncDecl{}, host: host}
	for _, d := range prog.Decls {
		if fd, ok := d.(*FuncDecl); ok {
			it.funcs[fd.Name] = fd
		}
	}
	return it
}

// Env is a lexically scoped stack frame of variable slots.
type Env struct {
	vars     map[string]*Value
	readonly map[string]bool
	parent   *Env
}

func newEnv(parent *Env) *Env {
	return &Env{vars: map[string]*Value{}, parent: parent}
}

func (e *Env) define(name string, v Value) *Value {
	p := new(Value)
	*p = v
	e.vars[name] = p
	return p
}

func (e *Env) lookup(name string) (*Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if p, ok := cur.vars[name]; ok {
			return p, true
		}
	}
	return nil, false
}

func (e *Env) isReadonly(name string) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.readonly[name] {
			return true
		}
		if _, ok := cur.vars[name]; ok {
			return false
		}
	}
	return false
}

// execKind tags how a statement unwound.
type execKind uint8

const (
	execNormal execKind = iota
	execBreak
	execContinue
	execReturn
)

type execResult struct {
	kind      execKind
	value     Value
	status    int
	hasStatus bool
}

var normalResult = execResult{kind: execNormal}

// Run evaluates the script's top-level statements against req, returning
// the HTTP status (default 200, or the two-value return's status) and the
// JSON body value.
func (it *Interp) Run(req Value) (status int, body Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(*RuntimeError); ok {
				err = re
				status = 500
				o := jsonval.NewObject()
				o.Set("error", jsonval.String(re.Message))
				body = jsonval.Obj(o)
				return
			}
			panic(r)
		}
	}()

	env := newEnv(nil)
	env.readonly = map[string]bool{"req": true}
	env.define("req", req)

	res := normalResult
	for _, d := range it.prog.Decls {
		if _, ok := d.(*FuncDecl); ok {
			continue
		}
		res = it.execStmt(d.(Stmt), env)
		if res.kind == execReturn {
			break
		}
		if res.kind == execBreak || res.kind == execContinue {
			panic(runtimeErrf(Pos{}, "break/continue outside of a loop"))
		}
	}

	if res.kind == execReturn {
		if res.hasStatus {
			return res.status, res.value, nil
		}
		return 200, res.value, nil
	}
	return 200, UndefinedValue, nil
}

func (it *Interp) execBlock(b *Block, parent *Env) execResult {
	env := newEnv(parent)
	return it.execStmts(b.Stmts, env)
}

func (it *Interp) execStmts(stmts []Stmt, env *Env) execResult {
	for _, s := range stmts {
		res := it.execStmt(s, env)
		if res.kind != execNormal {
			return res
		}
	}
	return normalResult
}

func (it *Interp) execStmt(s Stmt, env *Env) execResult {
	switch t := s.(type) {
	case *LetDecl:
		v := it.eval(t.Init, env)
		env.define(t.Name, v)
		return normalResult
	case *Assign:
		v := it.eval(t.Value, env)
		it.assign(t.Target, env, v)
		return normalResult
	case *If:
		cond := it.eval(t.Cond, env)
		if cond.Bool() {
			return it.execBlock(t.Then, env)
		} else if t.Else != nil {
			return it.execStmt(t.Else, env)
		}
		return normalResult
	case *For:
		loopEnv := newEnv(env)
		if t.Init != nil {
			it.execStmt(t.Init, loopEnv)
		}
		for t.Cond == nil || it.eval(t.Cond, loopEnv).Bool() {
			res := it.execBlock(t.Body, loopEnv)
			if res.kind == execReturn {
				return res
			}
			if res.kind == execBreak {
				break
			}
			if t.Step != nil {
				it.execStmt(t.Step, loopEnv)
			}
		}
		return normalResult
	case *While:
		for it.eval(t.Cond, env).Bool() {
			res := it.execBlock(t.Body, env)
			if res.kind == execReturn {
				return res
			}
			if res.kind == execBreak {
				break
			}
		}
		return normalResult
	case *Switch:
		scrut := it.eval(t.Scrutinee, env)
		for _, cs := range t.Cases {
			lit := it.eval(cs.Literal, env)
			if jsonval.Equal(scrut, lit) {
				return it.execBlock(cs.Body, env)
			}
		}
		if t.Default != nil {
			return it.execBlock(t.Default, env)
		}
		return normalResult
	case *Break:
		return execResult{kind: execBreak}
	case *Continue:
		return execResult{kind: execContinue}
	case *Return:
		res := execResult{kind: execReturn, value: UndefinedValue}
		if t.Value != nil {
			res.value = it.eval(t.Value, env)
		}
		if t.Code != nil {
			code := it.eval(t.Code, env)
			res.hasStatus = true
			res.status = int(code.Num())
		}
		return res
	case *ExprStmt:
		it.eval(t.X, env)
		return normalResult
	case *Block:
		return it.execBlock(t, env)
	}
	return normalResult
}

// assign writes v into the location lv names, enforcing req's read-only
// invariant and writing back through container mutation.
func (it *Interp) assign(lv LValue, env *Env, v Value) {
	switch t := lv.(type) {
	case *IdentLValue:
		if env.isReadonly(t.Name) {
			panic(runtimeErrf(t.Pos, "%q is read-only", t.Name))
		}
		p, ok := env.lookup(t.Name)
		if !ok {
			panic(runtimeErrf(t.Pos, "undefined name %q", t.Name))
		}
		*p = v
	case *MemberLValue:
		if rootIsReadonly(t.Target, env) {
			panic(runtimeErrf(t.Pos, "assignment target is read-only"))
		}
		target := it.eval(t.Target, env)
		if target.Kind() != jsonval.KindObject {
			panic(runtimeErrf(t.Pos, "cannot assign member of a non-object value"))
		}
		target.Object().Set(t.Name, v)
	case *IndexLValue:
		if rootIsReadonly(t.Target, env) {
			panic(runtimeErrf(t.Pos, "assignment target is read-only"))
		}
		target := it.eval(t.Target, env)
		idx := it.eval(t.Index, env)
		switch target.Kind() {
		case jsonval.KindObject:
			target.Object().Set(idx.Str(), v)
		case jsonval.KindArray:
			i := int(idx.Num())
			if !target.SetArrayIndex(i, v) {
				panic(runtimeErrf(t.Pos, "index %d out of range", i))
			}
			it.writeBack(t.Target, env, target)
		default:
			panic(runtimeErrf(t.Pos, "cannot index-assign a non-container value"))
		}
	}
}

// writeBack stores v into the lvalue-convertible expression target, used
// when a mutation (e.g. array element or vec.push) must propagate to a
// variable slot that holds the array by value.
func (it *Interp) writeBack(target Expr, env *Env, v Value) {
	lv, err := exprToLValue(target)
	if err != nil {
		return // not addressable; mutation stays local to this expression
	}
	switch t := lv.(type) {
	case *IdentLValue:
		if p, ok := env.lookup(t.Name); ok && !env.isReadonly(t.Name) {
			*p = v
		}
	case *MemberLValue:
		base := it.eval(t.Target, env)
		if base.Kind() == jsonval.KindObject {
			base.Object().Set(t.Name, v)
		}
	case *IndexLValue:
		// Arrays nested inside arrays: best-effort, rare in practice.
	}
}

func rootIsReadonly(e Expr, env *Env) bool {
	switch t := e.(type) {
	case *Ident:
		return env.isReadonly(t.Name)
	case *Member:
		return rootIsReadonly(t.Target, env)
	case *Index:
		return rootIsReadonly(t.Target, env)
	}
	return false
}

func (it *Interp) eval(e Expr, env *Env) Value {
	switch t := e.(type) {
	case *NumberLit:
		return jsonval.Number(t.Value)
	case *StringLit:
		return jsonval.String(t.Value)
	case *BoolLit:
		return jsonval.Bool(t.Value)
	case *UndefinedLit:
		return UndefinedValue
	case *TemplateLit:
		var sb strings.Builder
		for i, part := range t.Parts {
			sb.WriteString(part)
			if i < len(t.Exprs) {
				sb.WriteString(it.toStringValue(it.eval(t.Exprs[i], env)))
			}
		}
		return jsonval.String(sb.String())
	case *Ident:
		p, ok := env.lookup(t.Name)
		if !ok {
			panic(runtimeErrf(t.Pos, "undefined name %q", t.Name))
		}
		return *p
	case *Unary:
		x := it.eval(t.X, env)
		switch t.Op {
		case "!":
			return jsonval.Bool(!x.Bool())
		case "-":
			return jsonval.Number(-x.Num())
		}
	case *Binary:
		return it.evalBinary(t, env)
	case *Call:
		return it.evalCall(t, env)
	case *Member:
		target := it.eval(t.Target, env)
		if target.Kind() != jsonval.KindObject {
			panic(runtimeErrf(t.Pos, "member access on a non-object value"))
		}
		v, ok := target.Object().Get(t.Name)
		if !ok {
			return UndefinedValue
		}
		return v
	case *Index:
		target := it.eval(t.Target, env)
		idx := it.eval(t.Index, env)
		switch target.Kind() {
		case jsonval.KindArray:
			i := int(idx.Num())
			if i < 0 || i >= len(target.Items()) {
				panic(runtimeErrf(t.Pos, "index %d out of range", i))
			}
			return target.Items()[i]
		case jsonval.KindObject:
			v, ok := target.Object().Get(idx.Str())
			if !ok {
				return UndefinedValue
			}
			return v
		default:
			panic(runtimeErrf(t.Pos, "cannot index a non-container value"))
		}
	case *ObjectLit:
		o := jsonval.NewObject()
		for _, f := range t.Fields {
			o.Set(f.Name, it.eval(f.Value, env))
		}
		return jsonval.Obj(o)
	case *ArrayLit:
		items := make([]Value, len(t.Elems))
		for i, el := range t.Elems {
			items[i] = it.eval(el, env)
		}
		return jsonval.Array(items)
	}
	panic(runtimeErrf(e.NodePos(), "unsupported expression"))
}

func (it *Interp) evalBinary(b *Binary, env *Env) Value {
	switch b.Op {
	case "&&":
		l := it.eval(b.Left, env)
		if !l.Bool() {
			return jsonval.False
		}
		return jsonval.Bool(it.eval(b.Right, env).Bool())
	case "||":
		l := it.eval(b.Left, env)
		if l.Bool() {
			return jsonval.True
		}
		return jsonval.Bool(it.eval(b.Right, env).Bool())
	}

	l := it.eval(b.Left, env)
	r := it.eval(b.Right, env)

	switch b.Op {
	case "+":
		if l.Kind() == jsonval.KindString || r.Kind() == jsonval.KindString {
			return jsonval.String(it.toStringValue(l) + it.toStringValue(r))
		}
		return jsonval.Number(l.Num() + r.Num())
	case "-":
		return jsonval.Number(l.Num() - r.Num())
	case "*":
		return jsonval.Number(l.Num() * r.Num())
	case "/":
		if r.Num() == 0 {
			panic(runtimeErrf(b.Pos, "division by zero"))
		}
		return jsonval.Number(l.Num() / r.Num())
	case "%":
		if r.Num() == 0 {
			panic(runtimeErrf(b.Pos, "division by zero"))
		}
		return jsonval.Number(math.Mod(l.Num(), r.Num()))
	case "==":
		return jsonval.Bool(jsonval.Equal(l, r))
	case "!=":
		return jsonval.Bool(!jsonval.Equal(l, r))
	case "<", "<=", ">", ">=":
		return it.compare(b.Op, l, r, b.Pos)
	}
	panic(runtimeErrf(b.Pos, "unsupported operator %q", b.Op))
}

func (it *Interp) compare(op string, l, r Value, pos Pos) Value {
	var less, equal bool
	switch {
	case l.Kind() == jsonval.KindNumber && r.Kind() == jsonval.KindNumber:
		less = l.Num() < r.Num()
		equal = l.Num() == r.Num()
	case l.Kind() == jsonval.KindString && r.Kind() == jsonval.KindString:
		less = l.Str() < r.Str()
		equal = l.Str() == r.Str()
	default:
		panic(runtimeErrf(pos, "cannot compare values of this type"))
	}
	switch op {
	case "<":
		return jsonval.Bool(less)
	case "<=":
		return jsonval.Bool(less || equal)
	case ">":
		return jsonval.Bool(!less && !equal)
	case ">=":
		return jsonval.Bool(!less)
	}
	return jsonval.False
}

func (it *Interp) evalCall(call *Call, env *Env) Value {
	switch callee := call.Callee.(type) {
	case *Ident:
		if fd, ok := it.funcs[callee.Name]; ok {
			return it.callUserFunc(fd, call, env)
		}
		args := it.evalArgs(call.Args, env)
		return it.callBuiltin(callee.Name, args, call.Pos)
	case *Member:
		target := it.eval(callee.Target, env)
		args := it.evalArgs(call.Args, env)
		switch target.Kind() {
		case jsonval.KindString:
			return it.callStringMethod(callee.Name, target, args, call.Pos)
		case jsonval.KindArray:
			return it.callVecMethod(callee.Name, callee.Target, target, args, env, call.Pos)
		case jsonval.KindObject:
			panic(runtimeErrf(call.Pos, "value at %q is not callable", callee.Name))
		default:
			panic(runtimeErrf(call.Pos, "type has no method %q", callee.Name))
		}
	}
	panic(runtimeErrf(call.Pos, "expression is not callable"))
}

func (it *Interp) evalArgs(exprs []Expr, env *Env) []Value {
	args := make([]Value, len(exprs))
	for i, a := range exprs {
		args[i] = it.eval(a, env)
	}
	return args
}

func (it *Interp) callUserFunc(fd *FuncDecl, call *Call, env *Env) Value {
	if len(call.Args) != len(fd.Params) {
		panic(runtimeErrf(call.Pos, "%q expects %d argument(s), got %d", fd.Name, len(fd.Params), len(call.Args)))
	}
	fnEnv := newEnv(nil)
	for i, p := range fd.Params {
		fnEnv.define(p.Name, it.eval(call.Args[i], env))
	}
	res := it.execBlock(fd.Body, fnEnv)
	if res.kind == execReturn {
		return res.value
	}
	return UndefinedValue
}

// toStringValue implements the string-coercion rule used by `+`, template
// interpolation and the `toString` built-in.
func (it *Interp) toStringValue(v Value) string {
	switch v.Kind() {
	case jsonval.KindNull:
		return "undefined"
	case jsonval.KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case jsonval.KindNumber:
		return formatNumber(v.Num())
	case jsonval.KindString:
		return v.Str()
	default:
		return string(jsonval.Encode(v))
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func toTypeName(v Value) string {
	switch v.Kind() {
	case jsonval.KindNull:
		return "Undefined"
	case jsonval.KindBool:
		return "bool"
	case jsonval.KindNumber:
		return "number"
	case jsonval.KindString:
		return "string"
	case jsonval.KindObject:
		return "obj"
	case jsonval.KindArray:
		items := v.Items()
		if len(items) == 0 {
			return "vec<any>"
		}
		first := toTypeName(items[0])
		for _, it := range items[1:] {
			if toTypeName(it) != first {
				return "vec<any>"
			}
		}
		return "vec<" + first + ">"
	}
	return "Undefined"
}

func (it *Interp) callBuiltin(name string, args []Value, pos Pos) Value {
	switch name {
	case "print":
		vals := make([]interface{}, len(args))
		for i, a := range args {
			vals[i] = it.toStringValue(a)
		}
		if it.host.Logger != nil {
			it.host.Logger.Print(vals...)
		}
		return UndefinedValue
	case "sleep":
		requireArgs(pos, name, args, 1)
		ms := args[0].Num()
		if ms < 0 {
			panic(runtimeErrf(pos, "sleep: ms must be non-negative"))
		}
		if it.host.Sleep != nil {
			it.host.Sleep(ms)
		} else {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return UndefinedValue
	case "toString":
		requireArgs(pos, name, args, 1)
		return jsonval.String(it.toStringValue(args[0]))
	case "toType":
		requireArgs(pos, name, args, 1)
		return jsonval.String(toTypeName(args[0]))
	case "cacheSet":
		requireArgs(pos, name, args, 2)
		it.requireCache(pos).Set(args[0].Str(), args[1])
		return UndefinedValue
	case "cacheGet":
		requireArgs(pos, name, args, 1)
		v, ok := it.requireCache(pos).Get(args[0].Str())
		if !ok {
			return UndefinedValue
		}
		return v
	case "cacheDel":
		requireArgs(pos, name, args, 1)
		it.requireCache(pos).Del(args[0].Str())
		return UndefinedValue
	case "cacheClear":
		it.requireCache(pos).Clear()
		return UndefinedValue
	case "dbCreateTable":
		requireArgs(pos, name, args, 1)
		if err := it.requireDB(pos).CreateTable(args[0].Str()); err != nil {
			panic(runtimeErrf(pos, "dbCreateTable: %v", err))
		}
		return UndefinedValue
	case "dbGetAllTables":
		tables := it.requireDB(pos).AllTables()
		items := make([]Value, len(tables))
		for i, t := range tables {
			items[i] = jsonval.String(t)
		}
		return jsonval.Array(items)
	case "dbDropTable":
		requireArgs(pos, name, args, 1)
		if err := it.requireDB(pos).DropTable(args[0].Str()); err != nil {
			panic(runtimeErrf(pos, "dbDropTable: %v", err))
		}
		return UndefinedValue
	case "dbDrop":
		if err := it.requireDB(pos).Drop(); err != nil {
			panic(runtimeErrf(pos, "dbDrop: %v", err))
		}
		return UndefinedValue
	case "dbCreateEntry":
		requireArgs(pos, name, args, 2)
		id, err := it.requireDB(pos).CreateEntry(args[0].Str(), args[1])
		if err != nil {
			panic(runtimeErrf(pos, "dbCreateEntry: %v", err))
		}
		return jsonval.Number(float64(id))
	case "dbGetAll":
		requireArgs(pos, name, args, 1)
		rows, err := it.requireDB(pos).GetAll(args[0].Str())
		if err != nil {
			panic(runtimeErrf(pos, "dbGetAll: %v", err))
		}
		return jsonval.Array(rows)
	case "dbGetById":
		requireArgs(pos, name, args, 2)
		row, ok, err := it.requireDB(pos).GetByID(args[0].Str(), uint64(args[1].Num()))
		if err != nil {
			panic(runtimeErrf(pos, "dbGetById: %v", err))
		}
		if !ok {
			return UndefinedValue
		}
		return row
	case "dbGetByFields":
		requireArgs(pos, name, args, 2)
		rows, err := it.requireDB(pos).GetByFields(args[0].Str(), args[1])
		if err != nil {
			panic(runtimeErrf(pos, "dbGetByFields: %v", err))
		}
		return jsonval.Array(rows)
	case "dbUpdateById":
		requireArgs(pos, name, args, 3)
		ok, err := it.requireDB(pos).UpdateByID(args[0].Str(), uint64(args[1].Num()), args[2])
		if err != nil {
			panic(runtimeErrf(pos, "dbUpdateById: %v", err))
		}
		return jsonval.Bool(ok)
	case "dbUpdateByFields":
		requireArgs(pos, name, args, 3)
		n, err := it.requireDB(pos).UpdateByFields(args[0].Str(), args[1], args[2])
		if err != nil {
			panic(runtimeErrf(pos, "dbUpdateByFields: %v", err))
		}
		return jsonval.Number(float64(n))
	case "dbDeleteById":
		requireArgs(pos, name, args, 2)
		ok, err := it.requireDB(pos).DeleteByID(args[0].Str(), uint64(args[1].Num()))
		if err != nil {
			panic(runtimeErrf(pos, "dbDeleteById: %v", err))
		}
		return jsonval.Bool(ok)
	case "dbDeleteByFields":
		requireArgs(pos, name, args, 2)
		n, err := it.requireDB(pos).DeleteByFields(args[0].Str(), args[1])
		if err != nil {
			panic(runtimeErrf(pos, "dbDeleteByFields: %v", err))
		}
		return jsonval.Number(float64(n))
	}
	panic(runtimeErrf(pos, "undefined function %q", name))
}

func requireArgs(pos Pos, name string, args []Value, n int) {
	if len(args) != n {
		panic(runtimeErrf(pos, "%q expects %d argument(s), got %d", name, n, len(args)))
	}
}

func (it *Interp) requireCache(pos Pos) CacheStore {
	if it.host.Cache == nil {
		panic(runtimeErrf(pos, "no cache store configured"))
	}
	return it.host.Cache
}

func (it *Interp) requireDB(pos Pos) DBStore {
	if it.host.DB == nil {
		panic(runtimeErrf(pos, "no database configured"))
	}
	return it.host.DB
}

func (it *Interp) callStringMethod(name string, recv Value, args []Value, pos Pos) Value {
	s := recv.Str()
	switch name {
	case "length":
		return jsonval.Number(float64(utf8.RuneCountInString(s)))
	case "contains":
		requireArgs(pos, name, args, 1)
		return jsonval.Bool(strings.Contains(s, args[0].Str()))
	case "split":
		requireArgs(pos, name, args, 1)
		parts := strings.Split(s, args[0].Str())
		items := make([]Value, len(parts))
		for i, p := range parts {
			items[i] = jsonval.String(p)
		}
		return jsonval.Array(items)
	case "substring":
		requireArgs(pos, name, args, 2)
		runes := []rune(s)
		a := clampInt(int(args[0].Num()), 0, len(runes))
		b := clampInt(int(args[1].Num()), 0, len(runes))
		if b < a {
			a, b = b, a
		}
		return jsonval.String(string(runes[a:b]))
	case "replace":
		requireArgs(pos, name, args, 2)
		return jsonval.String(strings.Replace(s, args[0].Str(), args[1].Str(), 1))
	case "to_chars":
		var items []Value
		for _, r := range s {
			items = append(items, jsonval.String(string(r)))
		}
		return jsonval.Array(items)
	}
	panic(runtimeErrf(pos, "str has no method %q", name))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (it *Interp) callVecMethod(name string, recvExpr Expr, recv Value, args []Value, env *Env, pos Pos) Value {
	switch name {
	case "length":
		return jsonval.Number(float64(len(recv.Items())))
	case "push":
		requireArgs(pos, name, args, 1)
		newArr, ok := jsonval.PushArray(recv, args[0])
		if !ok {
			panic(runtimeErrf(pos, "push: not an array"))
		}
		it.writeBack(recvExpr, env, newArr)
		return jsonval.Number(float64(len(newArr.Items())))
	case "remove":
		requireArgs(pos, name, args, 1)
		newArr, removed, ok := jsonval.RemoveArrayByEqual(recv, args[0])
		if !ok {
			panic(runtimeErrf(pos, "remove: not an array"))
		}
		if removed {
			it.writeBack(recvExpr, env, newArr)
		}
		return jsonval.Bool(removed)
	case "removeAt":
		requireArgs(pos, name, args, 1)
		i := int(args[0].Num())
		removedVal, newArr, ok := jsonval.RemoveAtArray(recv, i)
		if !ok {
			panic(runtimeErrf(pos, "removeAt: index %d out of range", i))
		}
		it.writeBack(recvExpr, env, newArr)
		return removedVal
	}
	panic(runtimeErrf(pos, "vec has no method %q", name))
}
