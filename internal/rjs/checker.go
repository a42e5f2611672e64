package rjs

import "fmt"

// DiagnosticSeverity is the severity of a Diagnostic, consumed by the LSP
// core to pick an LSP DiagnosticSeverity.
type DiagnosticSeverity uint8

// Severities.
const (
	SeverityError DiagnosticSeverity = iota
	SeverityWarning
)

// Diagnostic kind codes are stable strings so the LSP layer (and tests) can
// key off them without parsing messages.
const (
	KindUndefinedName    = "undefined-name"
	KindTypeMismatch     = "type-mismatch"
	KindArityMismatch    = "arity-mismatch"
	KindNotCallable      = "not-callable"
	KindUnknownMethod    = "unknown-method"
	KindBadMemberAccess  = "bad-member-access"
	KindBadIndex         = "bad-index"
	KindBreakOutsideLoop = "break-outside-loop"
	KindContinueOutsideLoop = "continue-outside-loop"
	KindReturnOutsideScope  = "return-outside-scope"
	KindStatusNotNumeric    = "status-not-numeric"
	KindDuplicateParam      = "duplicate-param"
	KindUnusedLet           = "unused-let"
	KindCaseTypeMismatch    = "case-type-mismatch"
)

// Diagnostic is a single static-check finding.
type Diagnostic struct {
	Severity DiagnosticSeverity
	Kind     string
	Message  string
	Pos      Pos
}

// CheckError aggregates one or more error-severity Diagnostics, returned by
// Check when the program does not type-check.
type CheckError struct {
	Diagnostics []Diagnostic
}

func (e *CheckError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "rjs: type check failed"
	}
	d := e.Diagnostics[0]
	return fmt.Sprintf("%s: %s", d.Pos, d.Message)
}

type funcSig struct {
	Params []Type
	Ret    Type
}

// letBinding tracks one `let` declaration's position and whether anything
// read it before its scope closed.
type letBinding struct {
	pos  Pos
	used bool
}

// Checker performs a single-pass static type check. It only collects
// diagnostics: it attaches no types to the AST and keeps no side table
// of them.
type Checker struct {
	funcs  map[string]funcSig
	scopes []map[string]Type
	lets   []map[string]*letBinding
	diags  []Diagnostic

	loopDepth int
	funcDepth int
	curRet    *Type
}

// Check type-checks prog and returns all diagnostics (errors and warnings).
// A non-nil error is returned (a *CheckError) iff at least one diagnostic is
// error-severity.
func Check(prog *Program) ([]Diagnostic, error) {
	c := &Checker{funcs: map[string]funcSig{}}
	c.pushScope()
	c.declareGlobal("req", Obj)

	for _, d := range prog.Decls {
		if fd, ok := d.(*FuncDecl); ok {
			if _, exists := c.funcs[fd.Name]; exists {
				c.errorf(fd.Pos, KindTypeMismatch, "function %q redeclared", fd.Name)
				continue
			}
			params := make([]Type, len(fd.Params))
			seen := map[string]bool{}
			for i, p := range fd.Params {
				if seen[p.Name] {
					c.errorf(fd.Pos, KindDuplicateParam, "duplicate parameter %q in function %q", p.Name, fd.Name)
				}
				seen[p.Name] = true
				params[i] = p.Type
			}
			c.funcs[fd.Name] = funcSig{Params: params, Ret: fd.Ret}
		}
	}

	for _, d := range prog.Decls {
		switch t := d.(type) {
		case *FuncDecl:
			c.checkFuncDecl(t)
		case Stmt:
			c.checkStmt(t)
		}
	}
	c.popScope()

	var errs []Diagnostic
	for _, diag := range c.diags {
		if diag.Severity == SeverityError {
			errs = append(errs, diag)
		}
	}
	if len(errs) > 0 {
		return c.diags, &CheckError{Diagnostics: errs}
	}
	return c.diags, nil
}

func (c *Checker) pushScope() {
	c.scopes = append(c.scopes, map[string]Type{})
	c.lets = append(c.lets, map[string]*letBinding{})
}

// popScope discards the innermost scope, warning on any `let` declared in
// it that nothing ever read.
func (c *Checker) popScope() {
	top := c.lets[len(c.lets)-1]
	for name, lb := range top {
		if !lb.used {
			c.warnf(lb.pos, KindUnusedLet, "let %q is never used", name)
		}
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.lets = c.lets[:len(c.lets)-1]
}

func (c *Checker) declareGlobal(n string, t Type) { c.scopes[0][n] = t }

func (c *Checker) declare(name string, t Type) {
	c.scopes[len(c.scopes)-1][name] = t
}

// declareLet is like declare but also registers name as an unused-let
// candidate until something reads it.
func (c *Checker) declareLet(name string, t Type, pos Pos) {
	c.scopes[len(c.scopes)-1][name] = t
	c.lets[len(c.lets)-1][name] = &letBinding{pos: pos}
}

func (c *Checker) lookup(name string) (Type, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if t, ok := c.scopes[i][name]; ok {
			return t, true
		}
	}
	return Type{}, false
}

// markUsed flags the nearest enclosing `let` named name, if any, as used.
func (c *Checker) markUsed(name string) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if _, ok := c.scopes[i][name]; ok {
			if lb, ok := c.lets[i][name]; ok {
				lb.used = true
			}
			return
		}
	}
}

func (c *Checker) errorf(pos Pos, kind, format string, args ...interface{}) {
	c.diags = append(c.diags, Diagnostic{Severity: SeverityError, Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (c *Checker) warnf(pos Pos, kind, format string, args ...interface{}) {
	c.diags = append(c.diags, Diagnostic{Severity: SeverityWarning, Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos})
}

// assignable implements the assignment-compatibility rule. `any` (used
// for the statically-unknowable results of dynamic member/index access, and
// as an explicit escape hatch in let/param types) is compatible with
// anything in either direction.
func assignable(dst, src Type) bool {
	if dst.Kind == TypeAny || src.Kind == TypeAny {
		return true
	}
	if dst.Kind == src.Kind {
		if dst.Kind == TypeVec {
			if dst.Elem.Kind == TypeAny || src.Elem.Kind == TypeAny {
				return true
			}
			return assignable(*dst.Elem, *src.Elem)
		}
		return true
	}
	return false
}

func (c *Checker) checkFuncDecl(fd *FuncDecl) {
	c.pushScope()
	for _, p := range fd.Params {
		c.declare(p.Name, p.Type)
	}
	ret := fd.Ret
	c.funcDepth++
	prevRet := c.curRet
	c.curRet = &ret
	c.checkBlockStmts(fd.Body)
	c.curRet = prevRet
	c.funcDepth--
	c.popScope()
}

func (c *Checker) checkBlock(b *Block) {
	c.pushScope()
	c.checkBlockStmts(b)
	c.popScope()
}

func (c *Checker) checkBlockStmts(b *Block) {
	for _, s := range b.Stmts {
		c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(s Stmt) {
	switch t := s.(type) {
	case *LetDecl:
		initType := c.checkExpr(t.Init)
		if !assignable(t.Type, initType) {
			c.errorf(t.Pos, KindTypeMismatch, "cannot assign %s to let %q of type %s", initType, t.Name, t.Type)
		}
		c.declareLet(t.Name, t.Type, t.Pos)
	case *Assign:
		targetType := c.checkLValue(t.Target)
		valType := c.checkExpr(t.Value)
		if !assignable(targetType, valType) {
			c.errorf(t.Pos, KindTypeMismatch, "cannot assign %s to target of type %s", valType, targetType)
		}
	case *If:
		cond := c.checkExpr(t.Cond)
		if cond.Kind != TypeBool {
			c.errorf(t.Cond.NodePos(), KindTypeMismatch, "if condition must be bool, got %s", cond)
		}
		c.checkBlock(t.Then)
		if t.Else != nil {
			c.checkStmt(t.Else)
		}
	case *For:
		c.pushScope()
		if t.Init != nil {
			c.checkStmt(t.Init)
		}
		if t.Cond != nil {
			cond := c.checkExpr(t.Cond)
			if cond.Kind != TypeBool {
				c.errorf(t.Cond.NodePos(), KindTypeMismatch, "for condition must be bool, got %s", cond)
			}
		}
		if t.Step != nil {
			c.checkStmt(t.Step)
		}
		c.loopDepth++
		c.checkBlockStmts(t.Body)
		c.loopDepth--
		c.popScope()
	case *While:
		cond := c.checkExpr(t.Cond)
		if cond.Kind != TypeBool {
			c.errorf(t.Cond.NodePos(), KindTypeMismatch, "while condition must be bool, got %s", cond)
		}
		c.loopDepth++
		c.checkBlock(t.Body)
		c.loopDepth--
	case *Switch:
		scrut := c.checkExpr(t.Scrutinee)
		for _, cs := range t.Cases {
			lt := c.checkExpr(cs.Literal)
			if lt.Kind != scrut.Kind {
				c.warnf(cs.Literal.NodePos(), KindCaseTypeMismatch, "case literal type %s differs from switch type %s", lt, scrut)
			}
			c.checkBlock(cs.Body)
		}
		if t.Default != nil {
			c.checkBlock(t.Default)
		}
	case *Break:
		if c.loopDepth == 0 {
			c.errorf(t.Pos, KindBreakOutsideLoop, "break outside of a loop")
		}
	case *Continue:
		if c.loopDepth == 0 {
			c.errorf(t.Pos, KindContinueOutsideLoop, "continue outside of a loop")
		}
	case *Return:
		c.checkReturn(t)
	case *ExprStmt:
		c.checkExpr(t.X)
	case *Block:
		c.checkBlock(t)
	}
}

func (c *Checker) checkReturn(r *Return) {
	if r.Code != nil {
		if c.funcDepth > 0 {
			c.errorf(r.Pos, KindReturnOutsideScope, "the two-value return form is only legal at the script's top level")
		}
		codeType := c.checkExpr(r.Code)
		if codeType.Kind != TypeNum {
			c.errorf(r.Code.NodePos(), KindStatusNotNumeric, "return status must be num, got %s", codeType)
		}
	}
	if r.Value == nil {
		if c.funcDepth > 0 && c.curRet != nil && c.curRet.Kind != TypeUndefined {
			c.errorf(r.Pos, KindTypeMismatch, "function must return a value of type %s", *c.curRet)
		}
		return
	}
	valType := c.checkExpr(r.Value)
	if c.funcDepth > 0 && c.curRet != nil {
		if !assignable(*c.curRet, valType) {
			c.errorf(r.Value.NodePos(), KindTypeMismatch, "cannot return %s from function declared to return %s", valType, *c.curRet)
		}
	}
}

func (c *Checker) checkLValue(lv LValue) Type {
	switch t := lv.(type) {
	case *IdentLValue:
		if typ, ok := c.lookup(t.Name); ok {
			return typ
		}
		c.errorf(t.Pos, KindUndefinedName, "undefined name %q", t.Name)
		return Any
	case *MemberLValue:
		target := c.checkExpr(t.Target)
		if target.Kind != TypeObj && target.Kind != TypeAny {
			c.errorf(t.Pos, KindBadMemberAccess, "member assignment target must be obj, got %s", target)
		}
		return Any
	case *IndexLValue:
		target := c.checkExpr(t.Target)
		idx := c.checkExpr(t.Index)
		switch target.Kind {
		case TypeVec:
			if idx.Kind != TypeNum {
				c.errorf(t.Pos, KindBadIndex, "vec index must be num, got %s", idx)
			}
			if target.Elem != nil {
				return *target.Elem
			}
			return Any
		case TypeObj, TypeAny:
			if idx.Kind != TypeStr && idx.Kind != TypeNum && idx.Kind != TypeAny {
				c.errorf(t.Pos, KindBadIndex, "index must be str or num, got %s", idx)
			}
			return Any
		default:
			c.errorf(t.Pos, KindBadIndex, "cannot index into %s", target)
			return Any
		}
	}
	return Any
}

func (c *Checker) checkExpr(e Expr) Type {
	switch t := e.(type) {
	case *NumberLit:
		return Num
	case *StringLit:
		return Str
	case *BoolLit:
		return Bool
	case *UndefinedLit:
		return Undefined
	case *TemplateLit:
		for _, sub := range t.Exprs {
			c.checkExpr(sub)
		}
		return Str
	case *Ident:
		if typ, ok := c.lookup(t.Name); ok {
			c.markUsed(t.Name)
			return typ
		}
		if _, ok := c.funcs[t.Name]; ok {
			// a bare function name with no call is not a value in RJS
			c.errorf(t.Pos, KindNotCallable, "function %q used as a value", t.Name)
			return Any
		}
		c.errorf(t.Pos, KindUndefinedName, "undefined name %q", t.Name)
		return Any
	case *Unary:
		xt := c.checkExpr(t.X)
		switch t.Op {
		case "!":
			if xt.Kind != TypeBool {
				c.errorf(t.Pos, KindTypeMismatch, "unary ! requires bool, got %s", xt)
			}
			return Bool
		case "-":
			if xt.Kind != TypeNum {
				c.errorf(t.Pos, KindTypeMismatch, "unary - requires num, got %s", xt)
			}
			return Num
		}
		return Any
	case *Binary:
		return c.checkBinary(t)
	case *Call:
		return c.checkCall(t)
	case *Member:
		target := c.checkExpr(t.Target)
		if target.Kind != TypeObj && target.Kind != TypeAny {
			c.errorf(t.Pos, KindBadMemberAccess, "member access on non-obj type %s must be a method call", target)
			return Any
		}
		return Any
	case *Index:
		target := c.checkExpr(t.Target)
		idx := c.checkExpr(t.Index)
		switch target.Kind {
		case TypeVec:
			if idx.Kind != TypeNum {
				c.errorf(t.Pos, KindBadIndex, "vec index must be num, got %s", idx)
			}
			if target.Elem != nil {
				return *target.Elem
			}
			return Any
		case TypeObj, TypeAny:
			if idx.Kind != TypeStr && idx.Kind != TypeNum && idx.Kind != TypeAny {
				c.errorf(t.Pos, KindBadIndex, "index must be str or num, got %s", idx)
			}
			return Any
		default:
			c.errorf(t.Pos, KindBadIndex, "cannot index into %s", target)
			return Any
		}
	case *ObjectLit:
		for _, f := range t.Fields {
			c.checkExpr(f.Value)
		}
		return Obj
	case *ArrayLit:
		if len(t.Elems) == 0 {
			return VecAny
		}
		first := c.checkExpr(t.Elems[0])
		uniform := true
		for _, el := range t.Elems[1:] {
			et := c.checkExpr(el)
			if et.Kind != first.Kind {
				uniform = false
			}
		}
		if uniform {
			return Vec(first)
		}
		return VecAny
	}
	return Any
}

func (c *Checker) checkBinary(b *Binary) Type {
	lt := c.checkExpr(b.Left)
	rt := c.checkExpr(b.Right)
	dynamic := lt.Kind == TypeAny || rt.Kind == TypeAny
	switch b.Op {
	case "+":
		if lt.Kind == TypeNum && rt.Kind == TypeNum {
			return Num
		}
		if lt.Kind == TypeStr && rt.Kind == TypeStr {
			return Str
		}
		if (lt.Kind == TypeStr && rt.Kind == TypeNum) || (lt.Kind == TypeNum && rt.Kind == TypeStr) {
			return Str
		}
		if dynamic {
			return Any
		}
		c.errorf(b.Pos, KindTypeMismatch, "invalid operands to +: %s and %s", lt, rt)
		return Any
	case "-", "*", "/", "%":
		if dynamic {
			return Num
		}
		if lt.Kind != TypeNum || rt.Kind != TypeNum {
			c.errorf(b.Pos, KindTypeMismatch, "operator %s requires num operands, got %s and %s", b.Op, lt, rt)
		}
		return Num
	case "<", "<=", ">", ">=":
		if !dynamic && (lt.Kind != rt.Kind || lt.Kind == TypeVec || lt.Kind == TypeObj) {
			c.errorf(b.Pos, KindTypeMismatch, "operator %s requires two operands of the same non-container type, got %s and %s", b.Op, lt, rt)
		}
		return Bool
	case "==", "!=":
		if !dynamic && lt.Kind != TypeUndefined && rt.Kind != TypeUndefined && lt.Kind != rt.Kind {
			c.errorf(b.Pos, KindTypeMismatch, "cannot compare %s and %s", lt, rt)
		}
		return Bool
	case "&&", "||":
		if !dynamic && (lt.Kind != TypeBool || rt.Kind != TypeBool) {
			c.errorf(b.Pos, KindTypeMismatch, "operator %s requires bool operands, got %s and %s", b.Op, lt, rt)
		}
		return Bool
	}
	return Any
}

func (c *Checker) checkCall(call *Call) Type {
	switch callee := call.Callee.(type) {
	case *Ident:
		args := make([]Type, len(call.Args))
		for i, a := range call.Args {
			args[i] = c.checkExpr(a)
		}
		if sig, ok := c.funcs[callee.Name]; ok {
			c.checkArity(call.Pos, callee.Name, sig.Params, args, false)
			return sig.Ret
		}
		if sig, ok := builtinFuncs[callee.Name]; ok {
			c.checkArity(call.Pos, callee.Name, sig.Params, args, sig.Variadic)
			return sig.Ret
		}
		c.errorf(callee.Pos, KindUndefinedName, "undefined function %q", callee.Name)
		return Any
	case *Member:
		target := c.checkExpr(callee.Target)
		args := make([]Type, len(call.Args))
		for i, a := range call.Args {
			args[i] = c.checkExpr(a)
		}
		switch target.Kind {
		case TypeStr:
			sig, ok := strMethods[callee.Name]
			if !ok {
				c.errorf(callee.Pos, KindUnknownMethod, "str has no method %q", callee.Name)
				return Any
			}
			c.checkArity(call.Pos, callee.Name, sig.Params, args, false)
			return sig.Ret
		case TypeVec:
			sig, ok := vecMethodSig(callee.Name, target)
			if !ok {
				c.errorf(callee.Pos, KindUnknownMethod, "vec has no method %q", callee.Name)
				return Any
			}
			c.checkArity(call.Pos, callee.Name, sig.Params, args, false)
			return sig.Ret
		case TypeObj, TypeAny:
			return Any
		default:
			c.errorf(callee.Pos, KindUnknownMethod, "type %s has no method %q", target, callee.Name)
			return Any
		}
	default:
		c.errorf(call.Pos, KindNotCallable, "expression is not callable")
		for _, a := range call.Args {
			c.checkExpr(a)
		}
		return Any
	}
}

func (c *Checker) checkArity(pos Pos, name string, params, args []Type, variadic bool) {
	if variadic {
		return
	}
	if len(params) != len(args) {
		c.errorf(pos, KindArityMismatch, "%q expects %d argument(s), got %d", name, len(params), len(args))
		return
	}
	for i, p := range params {
		if p.Kind == TypeAny {
			continue
		}
		if !assignable(p, args[i]) {
			c.errorf(pos, KindTypeMismatch, "argument %d of %q: expected %s, got %s", i+1, name, p, args[i])
		}
	}
}
