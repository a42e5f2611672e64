package rjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFuncDecl(t *testing.T) {
	prog, err := Parse(`func add(a: num, b: num): num {
		return a + b;
	}`)
	require.NoError(t, err)
	require.Len(t, prog.Decls, 1)
	fd, ok := prog.Decls[0].(*FuncDecl)
	require.True(t, ok)
	assert.Equal(t, "add", fd.Name)
	assert.Equal(t, []Param{{Name: "a", Type: Num}, {Name: "b", Type: Num}}, fd.Params)
	assert.Equal(t, Num, fd.Ret)
}

func TestParseVecType(t *testing.T) {
	prog, err := Parse(`let xs: vec<num> = [1, 2, 3];`)
	require.NoError(t, err)
	ld := prog.Decls[0].(*LetDecl)
	assert.Equal(t, Vec(Num), ld.Type)
	arr := ld.Init.(*ArrayLit)
	assert.Len(t, arr.Elems, 3)
}

func TestParseIfElseIfElse(t *testing.T) {
	prog, err := Parse(`
	if (a) { print("a"); } else if (b) { print("b"); } else { print("c"); }
	`)
	require.NoError(t, err)
	ifStmt := prog.Decls[0].(*If)
	elseIf, ok := ifStmt.Else.(*If)
	require.True(t, ok)
	_, ok = elseIf.Else.(*Block)
	assert.True(t, ok)
}

func TestParseForWithLetInit(t *testing.T) {
	prog, err := Parse(`for (let i: num = 0; i < 10; i = i + 1) { print(i); }`)
	require.NoError(t, err)
	forStmt := prog.Decls[0].(*For)
	letInit, ok := forStmt.Init.(*LetDecl)
	require.True(t, ok)
	assert.Equal(t, "i", letInit.Name)
	require.NotNil(t, forStmt.Cond)
	require.NotNil(t, forStmt.Step)
}

func TestParseReturnBothForms(t *testing.T) {
	prog, err := Parse(`
	return 1;
	`)
	require.NoError(t, err)
	ret := prog.Decls[0].(*Return)
	assert.Nil(t, ret.Code)
	assert.NotNil(t, ret.Value)

	prog2, err := Parse(`
	return 201, { ok: true };
	`)
	require.NoError(t, err)
	ret2 := prog2.Decls[0].(*Return)
	require.NotNil(t, ret2.Code)
	require.NotNil(t, ret2.Value)
}

func TestParseReturnBare(t *testing.T) {
	prog, err := Parse(`func f() { return; }`)
	require.NoError(t, err)
	fd := prog.Decls[0].(*FuncDecl)
	ret := fd.Body.Stmts[0].(*Return)
	assert.Nil(t, ret.Code)
	assert.Nil(t, ret.Value)
}

func TestParseSwitch(t *testing.T) {
	prog, err := Parse(`
	switch (x) {
	case 1:
		print("one");
	case 2:
		print("two");
	default:
		print("other");
	}
	`)
	require.NoError(t, err)
	sw := prog.Decls[0].(*Switch)
	require.Len(t, sw.Cases, 2)
	require.NotNil(t, sw.Default)
}

func TestParseAssignmentTargets(t *testing.T) {
	prog, err := Parse(`
	x = 1;
	obj.field = 2;
	arr[0] = 3;
	`)
	require.NoError(t, err)
	require.Len(t, prog.Decls, 3)

	a1 := prog.Decls[0].(*Assign)
	_, ok := a1.Target.(*IdentLValue)
	assert.True(t, ok)

	a2 := prog.Decls[1].(*Assign)
	_, ok = a2.Target.(*MemberLValue)
	assert.True(t, ok)

	a3 := prog.Decls[2].(*Assign)
	_, ok = a3.Target.(*IndexLValue)
	assert.True(t, ok)
}

func TestParseInvalidAssignmentTarget(t *testing.T) {
	_, err := Parse(`1 = 2;`)
	require.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParseOperatorPrecedence(t *testing.T) {
	prog, err := Parse(`1 + 2 * 3 == 7 && true;`)
	require.NoError(t, err)
	es := prog.Decls[0].(*ExprStmt)
	top := es.X.(*Binary)
	assert.Equal(t, "&&", top.Op)
	eq := top.Left.(*Binary)
	assert.Equal(t, "==", eq.Op)
	add := eq.Left.(*Binary)
	assert.Equal(t, "+", add.Op)
	mul := add.Right.(*Binary)
	assert.Equal(t, "*", mul.Op)
}

func TestParseTemplateLiteralInterpolation(t *testing.T) {
	prog, err := Parse("`hello ${name}`;")
	require.NoError(t, err)
	es := prog.Decls[0].(*ExprStmt)
	tmpl := es.X.(*TemplateLit)
	require.Len(t, tmpl.Exprs, 1)
	ident, ok := tmpl.Exprs[0].(*Ident)
	require.True(t, ok)
	assert.Equal(t, "name", ident.Name)
}

func TestParseObjectAndArrayLiterals(t *testing.T) {
	prog, err := Parse(`let o: obj = { a: 1, b: [1, 2], c: { d: true } };`)
	require.NoError(t, err)
	let := prog.Decls[0].(*LetDecl)
	obj := let.Init.(*ObjectLit)
	require.Len(t, obj.Fields, 3)
	assert.Equal(t, "a", obj.Fields[0].Name)
}

func TestParseMemberAndIndexChains(t *testing.T) {
	prog, err := Parse(`req.body.items[0].name;`)
	require.NoError(t, err)
	es := prog.Decls[0].(*ExprStmt)
	m := es.X.(*Member)
	assert.Equal(t, "name", m.Name)
	idx := m.Target.(*Index)
	_, ok := idx.Target.(*Member)
	assert.True(t, ok)
}

func TestParseMethodCall(t *testing.T) {
	prog, err := Parse(`xs.push(1);`)
	require.NoError(t, err)
	es := prog.Decls[0].(*ExprStmt)
	call := es.X.(*Call)
	m := call.Callee.(*Member)
	assert.Equal(t, "push", m.Name)
	require.Len(t, call.Args, 1)
}
