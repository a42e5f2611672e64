package rjs

import (
	"fmt"

	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
)

// Value is the RJS runtime value type. It is structurally the jsonval value
// model: RJS's `Undefined` is represented by jsonval.Null, since neither
// language needs to distinguish "JSON null" from "RJS undefined" inside a
// single request's evaluation, and it makes "Undefined returned from a
// script becomes HTTP body null" a no-op at the response boundary.
type Value = jsonval.Value

// UndefinedValue is the RJS undefined value.
var UndefinedValue = jsonval.Null

// CacheStore is the host-provided cache built-in surface.
type CacheStore interface {
	Set(key string, v Value)
	Get(key string) (Value, bool)
	Del(key string)
	Clear()
}

// DBStore is the host-provided JSON-table database built-in surface.
type DBStore interface {
	CreateTable(name string) error
	AllTables() []string
	DropTable(name string) error
	Drop() error
	CreateEntry(table string, fields Value) (uint64, error)
	GetAll(table string) ([]Value, error)
	GetByID(table string, id uint64) (Value, bool, error)
	GetByFields(table string, filter Value) ([]Value, error)
	UpdateByID(table string, id uint64, patch Value) (bool, error)
	UpdateByFields(table string, filter, patch Value) (int, error)
	DeleteByID(table string, id uint64) (bool, error)
	DeleteByFields(table string, filter Value) (int, error)
}

// Logger is the host-provided sink for the `print` built-in.
type Logger interface {
	Print(args ...interface{})
}

// Sleeper abstracts time.Sleep so tests can stub it out.
type Sleeper func(ms float64)

// builtinSig is a built-in function's static signature, consulted by the
// checker.
type builtinSig struct {
	Params   []Type
	Ret      Type
	Variadic bool
}

var builtinFuncs = map[string]builtinSig{
	"print":              {Ret: Undefined, Variadic: true},
	"sleep":              {Params: []Type{Num}, Ret: Undefined},
	"toString":           {Params: []Type{Any}, Ret: Str},
	"toType":             {Params: []Type{Any}, Ret: Str},
	"cacheSet":           {Params: []Type{Str, Any}, Ret: Undefined},
	"cacheGet":           {Params: []Type{Str}, Ret: Any},
	"cacheDel":           {Params: []Type{Str}, Ret: Undefined},
	"cacheClear":         {Ret: Undefined},
	"dbCreateTable":      {Params: []Type{Str}, Ret: Undefined},
	"dbGetAllTables":     {Ret: Vec(Str)},
	"dbDropTable":        {Params: []Type{Str}, Ret: Undefined},
	"dbDrop":             {Ret: Undefined},
	"dbCreateEntry":      {Params: []Type{Str, Obj}, Ret: Num},
	"dbGetAll":           {Params: []Type{Str}, Ret: Vec(Obj)},
	"dbGetById":          {Params: []Type{Str, Num}, Ret: Any},
	"dbGetByFields":      {Params: []Type{Str, Obj}, Ret: Vec(Obj)},
	"dbUpdateById":       {Params: []Type{Str, Num, Obj}, Ret: Bool},
	"dbUpdateByFields":   {Params: []Type{Str, Obj, Obj}, Ret: Num},
	"dbDeleteById":       {Params: []Type{Str, Num}, Ret: Bool},
	"dbDeleteByFields":   {Params: []Type{Str, Obj}, Ret: Num},
}

var strMethods = map[string]builtinSig{
	"length":    {Ret: Num},
	"contains":  {Params: []Type{Str}, Ret: Bool},
	"split":     {Params: []Type{Str}, Ret: Vec(Str)},
	"substring": {Params: []Type{Num, Num}, Ret: Str},
	"replace":   {Params: []Type{Str, Str}, Ret: Str},
	"to_chars":  {Ret: Vec(Str)},
}

// vecMethodSig resolves a vec<T> method signature, substituting T for the
// receiver's element type.
func vecMethodSig(name string, vecType Type) (builtinSig, bool) {
	elem := Any
	if vecType.Elem != nil {
		elem = *vecType.Elem
	}
	switch name {
	case "length":
		return builtinSig{Ret: Num}, true
	case "push":
		return builtinSig{Params: []Type{elem}, Ret: Num}, true
	case "remove":
		return builtinSig{Params: []Type{elem}, Ret: Bool}, true
	case "removeAt":
		return builtinSig{Params: []Type{Num}, Ret: elem}, true
	}
	return builtinSig{}, false
}

// RuntimeError terminates script execution and becomes HTTP 500 with
// `{error: message}`.
type RuntimeError struct {
	Pos     Pos
	Message string
}

func (e *RuntimeError) Error() string {
	if e.Pos == (Pos{}) {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func runtimeErrf(pos Pos, format string, args ...interface{}) error {
	return &RuntimeError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
