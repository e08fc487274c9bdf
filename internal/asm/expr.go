package asm

import (
	"fmt"
	"strconv"

	"github.com/tetratelabs/keystone/api"
)

// ExprOp is the operator of an Expr node.
type ExprOp byte

const (
	ExprConst ExprOp = iota
	ExprSymbol
	// ExprHere is the address of the current statement ("." in GAS, "$" in Intel dialects).
	ExprHere
	ExprNeg
	ExprNot
	ExprLogicalNot
	ExprAdd
	ExprSub
	ExprMul
	ExprDiv
	ExprMod
	ExprShl
	ExprShr
	ExprAnd
	ExprOr
	ExprXor
	ExprEq
	ExprNe
	ExprLt
	ExprLe
	ExprGt
	ExprGe
	ExprLogicalAnd
	ExprLogicalOr
)

var exprOpNames = map[ExprOp]string{
	ExprNeg: "-", ExprNot: "~", ExprLogicalNot: "!",
	ExprAdd: "+", ExprSub: "-", ExprMul: "*", ExprDiv: "/", ExprMod: "%", ExprShl: "<<", ExprShr: ">>",
	ExprAnd: "&", ExprOr: "|", ExprXor: "^", ExprEq: "==", ExprNe: "!=", ExprLt: "<", ExprLe: "<=", ExprGt: ">",
	ExprGe: ">=", ExprLogicalAnd: "&&", ExprLogicalOr: "||",
}

// Expr is an integer expression tree. Unary operators only use X.
type Expr struct {
	Op     ExprOp
	Value  int64
	Symbol string
	X, Y   *Expr
}

// Const returns a constant expression.
func Const(v int64) *Expr { return &Expr{Op: ExprConst, Value: v} }

// Symbol returns a symbol reference.
func Symbol(name string) *Expr { return &Expr{Op: ExprSymbol, Symbol: name} }

// Here returns the current address.
func Here() *Expr { return &Expr{Op: ExprHere} }

// Unary returns op applied to x.
func Unary(op ExprOp, x *Expr) *Expr { return &Expr{Op: op, X: x} }

// Binary returns x op y.
func Binary(op ExprOp, x, y *Expr) *Expr { return &Expr{Op: op, X: x, Y: y} }

// String implements fmt.Stringer.
func (e *Expr) String() string {
	if e == nil {
		return "0"
	}
	switch e.Op {
	case ExprConst:
		if e.Value < 0 || e.Value > 9 {
			return "0x" + strconv.FormatUint(uint64(e.Value), 16)
		}
		return strconv.FormatInt(e.Value, 10)
	case ExprSymbol:
		return e.Symbol
	case ExprHere:
		return "."
	case ExprNeg, ExprNot, ExprLogicalNot:
		return exprOpNames[e.Op] + e.X.String()
	}
	return fmt.Sprintf("(%s %s %s)", e.X, exprOpNames[e.Op], e.Y)
}

// IsConst returns true if the expression contains neither symbols nor the current address.
func (e *Expr) IsConst() bool {
	if e == nil {
		return true
	}
	switch e.Op {
	case ExprConst:
		return true
	case ExprSymbol, ExprHere:
		return false
	}
	return e.X.IsConst() && (e.Y == nil || e.Y.IsConst())
}

// Symbols calls fn for each symbol referenced by the expression.
func (e *Expr) Symbols(fn func(name string)) {
	if e == nil {
		return
	}
	if e.Op == ExprSymbol {
		fn(e.Symbol)
		return
	}
	e.X.Symbols(fn)
	e.Y.Symbols(fn)
}

// Env resolves symbols and the current address for Eval.
type Env interface {
	// Lookup returns the value of a symbol. ok is false when the symbol has no value yet, and err is non-nil when
	// the symbol can never be resolved.
	Lookup(name string) (v int64, ok bool, err error)
	// Here is the address of the statement being evaluated.
	Here() uint64
}

// Eval evaluates the expression. resolved is false if any referenced symbol has no value yet, in which case v is a
// placeholder computed with zero for those symbols.
func (e *Expr) Eval(env Env) (v int64, resolved bool, err error) {
	if e == nil {
		return 0, true, nil
	}
	switch e.Op {
	case ExprConst:
		return e.Value, true, nil
	case ExprSymbol:
		if env == nil {
			return 0, false, nil
		}
		return env.Lookup(e.Symbol)
	case ExprHere:
		if env == nil {
			return 0, false, nil
		}
		return int64(env.Here()), true, nil
	}

	x, xok, err := e.X.Eval(env)
	if err != nil {
		return 0, false, err
	}
	switch e.Op {
	case ExprNeg:
		return -x, xok, nil
	case ExprNot:
		return ^x, xok, nil
	case ExprLogicalNot:
		return boolValue(x == 0), xok, nil
	}

	y, yok, err := e.Y.Eval(env)
	if err != nil {
		return 0, false, err
	}
	resolved = xok && yok
	switch e.Op {
	case ExprAdd:
		v = x + y
	case ExprSub:
		v = x - y
	case ExprMul:
		v = x * y
	case ExprDiv, ExprMod:
		if y == 0 {
			if !resolved {
				return 0, false, nil
			}
			return 0, false, Errorf(api.ErrAsmExprToken, "division by zero in %s", e)
		}
		if e.Op == ExprDiv {
			v = x / y
		} else {
			v = x % y
		}
	case ExprShl:
		v = x << uint64(y&63)
	case ExprShr:
		v = int64(uint64(x) >> uint64(y&63))
	case ExprAnd:
		v = x & y
	case ExprOr:
		v = x | y
	case ExprXor:
		v = x ^ y
	case ExprEq:
		v = boolValue(x == y)
	case ExprNe:
		v = boolValue(x != y)
	case ExprLt:
		v = boolValue(x < y)
	case ExprLe:
		v = boolValue(x <= y)
	case ExprGt:
		v = boolValue(x > y)
	case ExprGe:
		v = boolValue(x >= y)
	case ExprLogicalAnd:
		v = boolValue(x != 0 && y != 0)
	case ExprLogicalOr:
		v = boolValue(x != 0 || y != 0)
	default:
		return 0, false, fmt.Errorf("BUG: unknown expression operator %d", e.Op)
	}
	return
}

// boolValue follows GAS: true is -1.
func boolValue(b bool) int64 {
	if b {
		return -1
	}
	return 0
}
