package asm

import (
	"errors"
	"fmt"
	"math"

	"github.com/tetratelabs/keystone/api"
)

// maxPasses bounds the layout iterations. Relaxation only ever grows instructions, so real programs converge in a
// handful of passes; hitting this means symbol values depend on themselves.
const maxPasses = 64

// Config controls one Assemble call.
type Config struct {
	// Address is the address of the first statement.
	Address uint64
	// MaxOutput is the maximum number of bytes produced before failing with api.ErrNoMem. Zero means no overall limit,
	// though a single .space or alignment is still bounded.
	MaxOutput int
	// Resolver optionally resolves symbols not defined by the source.
	Resolver func(name string) (uint64, bool)
}

// Result is the outcome of Assemble.
type Result struct {
	Bytes []byte
	// Statements is the number of statements which emitted code or data.
	Statements int
	// Passes is the number of layout passes made.
	Passes int
}

// Context is passed to Encoder.Encode. It exposes the address of the statement and symbol resolution.
type Context struct {
	// Address is the address of the statement being encoded.
	Address uint64
	// Long is set when a previous attempt returned ErrRelax: relative displacements must use the longest form.
	Long bool
	// Final is set on the pass producing the output. Only then are unresolved symbols an error.
	Final bool
	// Reorder is the MIPS ".set reorder" state: branch delay slots are filled with a NOP by the encoder.
	Reorder bool
	// Packet is the address of the first instruction of the Hexagon packet holding the statement. Hexagon branches
	// are relative to it.
	Packet uint64

	l *layout
}

// Here implements Env.Here.
func (c *Context) Here() uint64 {
	return c.Address
}

// Lookup implements Env.Lookup.
func (c *Context) Lookup(name string) (int64, bool, error) {
	if c.l == nil {
		return 0, false, Errorf(api.ErrAsmInvalidOperand, "undefined symbol %q", name)
	}
	return c.l.lookup(name)
}

// Eval evaluates e at the current address.
func (c *Context) Eval(e *Expr) (v int64, resolved bool, err error) {
	v, resolved, err = e.Eval(c)
	if err == nil && !resolved && c.Final {
		err = Errorf(api.ErrAsmInvalidOperand, "unresolved symbol in %s", e)
	}
	return
}

// Value is Eval for encoders that do not care whether the value is final: unresolved values are zero until the
// final pass.
func (c *Context) Value(e *Expr) (int64, error) {
	v, _, err := c.Eval(e)
	return v, err
}

// layout holds the symbol state across passes.
type layout struct {
	enc   Encoder
	stmts []*Statement
	cfg   Config

	// names are all labels and equates defined by the statements.
	names map[string]struct{}
	prev  map[string]int64
	cur   map[string]int64
	// long is set per statement index once the statement needed relaxation.
	long []bool
	// unresolved is set when a pass evaluated a symbol without any value yet.
	unresolved bool
	// lenient treats unknown symbols as unresolved instead of failing.
	lenient bool
	buf     *Buffer
}

func newLayout(enc Encoder, stmts []*Statement, cfg Config) *layout {
	l := &layout{
		enc:   enc,
		stmts: stmts,
		cfg:   cfg,
		names: map[string]struct{}{},
		prev:  map[string]int64{},
		long:  make([]bool, len(stmts)),
		buf:   NewBuffer(cfg.MaxOutput, enc.ByteOrder()),
	}
	for _, st := range stmts {
		if st.Kind == KindLabel || st.Kind == KindEquate {
			l.names[st.Name] = struct{}{}
		}
	}
	return l
}

func (l *layout) lookup(name string) (int64, bool, error) {
	if v, ok := l.cur[name]; ok {
		return v, true, nil
	}
	if _, ok := l.names[name]; ok {
		// Forward reference: use the value from the previous pass. The layout loop only stops once the values
		// used here equal the final ones.
		if v, ok := l.prev[name]; ok {
			return v, true, nil
		}
		l.unresolved = true
		return 0, false, nil
	}
	if l.cfg.Resolver != nil {
		if v, ok := l.cfg.Resolver(name); ok {
			return int64(v), true, nil
		}
	}
	if l.lenient {
		l.unresolved = true
		return 0, false, nil
	}
	return 0, false, Errorf(api.ErrAsmInvalidOperand, "undefined symbol %q", name)
}

// Assemble lays out and encodes the statements. Errors are *api.AssembleError values carrying the line of the
// first failing statement.
func Assemble(enc Encoder, stmts []*Statement, cfg Config) (*Result, error) {
	l := newLayout(enc, stmts, cfg)
	final := false
	for pass := 1; pass <= maxPasses; pass++ {
		changed, err := l.pass(final)
		if err != nil {
			return nil, err
		}
		if changed {
			final = false
			continue
		}
		// Without changes, a pass with unresolved symbols cannot make progress: the final pass reports them.
		if final {
			ret := &Result{Passes: pass, Bytes: make([]byte, l.buf.Len())}
			copy(ret.Bytes, l.buf.Bytes())
			for _, st := range stmts {
				if st.Emits() {
					ret.Statements++
				}
			}
			return ret, nil
		}
		final = true
	}
	line := 0
	if len(stmts) > 0 {
		line = stmts[0].Line
	}
	return nil, WithLine(Errorf(api.ErrAsmInvalidOperand, "symbol values do not converge after %d passes", maxPasses), line)
}

// Check encodes the statements once without requiring symbols to be defined. Front-ends use it to surface encoding
// errors located before a syntax error, so that the first failing line is reported.
func Check(enc Encoder, stmts []*Statement, cfg Config) error {
	l := newLayout(enc, stmts, cfg)
	l.lenient = true
	_, err := l.pass(false)
	return err
}

// pass encodes every statement once. changed is true if any symbol value or relaxation differs from the previous
// pass.
func (l *layout) pass(final bool) (changed bool, err error) {
	l.cur = make(map[string]int64, len(l.prev))
	l.unresolved = false
	l.buf.Reset()
	ctx := &Context{Final: final, Reorder: true, l: l}
	open := false

	for i, st := range l.stmts {
		ctx.Address = l.cfg.Address + uint64(l.buf.Len())
		ctx.Long = l.long[i]
		switch st.Kind {
		case KindLabel:
			if _, dup := l.cur[st.Name]; dup {
				err = Errorf(api.ErrAsmInvalidOperand, "symbol %q is already defined", st.Name)
			} else {
				l.cur[st.Name] = int64(ctx.Address)
			}
		case KindEquate:
			var v int64
			var resolved bool
			// An unresolved equate stays undefined for this pass, so that cycles never settle on zero.
			if v, resolved, err = ctx.Eval(st.Value); err == nil && resolved {
				l.cur[st.Name] = v
			}
		case KindOption:
			switch st.Name {
			case OptionReorder:
				ctx.Reorder = true
			case OptionNoReorder:
				ctx.Reorder = false
			}
		case KindInstruction:
			if !open {
				ctx.Packet = ctx.Address
			}
			open = !st.EndOfPacket
			var relaxed bool
			if relaxed, err = l.encode(ctx, i, st); relaxed {
				changed = true
			}
		case KindData:
			err = l.data(ctx, st)
		case KindSpace:
			err = l.space(ctx, st)
		case KindAlign:
			err = l.align(ctx, st)
		default:
			err = fmt.Errorf("BUG: unknown statement kind %s", st.Kind)
		}
		if err == nil {
			err = l.buf.Err()
		}
		if err != nil {
			return false, WithLine(err, st.Line)
		}
	}

	if !changed {
		changed = len(l.cur) != len(l.prev)
		for name, v := range l.cur {
			if changed {
				break
			}
			if p, ok := l.prev[name]; !ok || p != v {
				changed = true
			}
		}
	}
	l.prev = l.cur
	return
}

// encode encodes an instruction, switching it to its long form for this and all later passes on ErrRelax.
func (l *layout) encode(ctx *Context, i int, st *Statement) (relaxed bool, err error) {
	start := l.buf.Len()
	err = l.enc.Encode(ctx, st, l.buf)
	if !errors.Is(err, ErrRelax) {
		return
	}
	if ctx.Long {
		return false, fmt.Errorf("BUG: %s requested relaxation in its long form", st)
	}
	l.buf.Truncate(start)
	l.long[i] = true
	ctx.Long = true
	return true, l.enc.Encode(ctx, st, l.buf)
}

func (l *layout) data(ctx *Context, st *Statement) error {
	for i := range st.Operands {
		op := &st.Operands[i]
		switch op.Kind {
		case OperandString:
			b := []byte(op.Str)
			if st.ZeroTerminated {
				b = append(b, 0)
			}
			l.buf.WriteBytes(b...)
			if rem := len(b) % st.Width; st.Width > 1 && rem != 0 {
				l.buf.WriteBytes(make([]byte, st.Width-rem)...)
			}
		case OperandImmediate:
			v, resolved, err := ctx.Eval(op.Expr)
			if err != nil {
				return err
			}
			if resolved && !fitsWidth(v, st.Width) {
				return Errorf(api.ErrAsmDirectiveValueRange, "value %d does not fit in %d bytes", v, st.Width)
			}
			l.buf.WriteValue(uint64(v), st.Width)
		default:
			return Errorf(api.ErrAsmDirectiveToken, "unexpected operand %s in data directive", op)
		}
		// Operands are relative to the address of each element.
		ctx.Address = l.cfg.Address + uint64(l.buf.Len())
	}
	return nil
}

func (l *layout) space(ctx *Context, st *Statement) error {
	n, resolved, err := ctx.Eval(st.Value)
	if err != nil {
		return err
	}
	if !resolved {
		return nil
	}
	if n < 0 {
		return Errorf(api.ErrAsmDirectiveValueRange, "negative repeat count %d", n)
	}
	fill, _, err := ctx.Eval(st.Fill)
	if err != nil {
		return err
	}
	width := st.Width
	if width <= 0 {
		width = 1
	}
	if width > 8 {
		return Errorf(api.ErrAsmDirectiveValueRange, "fill size %d is larger than 8", width)
	}
	if err = l.reserve(uint64(n), width); err != nil {
		return err
	}
	for ; n > 0 && l.buf.Err() == nil; n-- {
		switch width {
		case 1, 2, 4, 8:
			l.buf.WriteValue(uint64(fill), width)
		default:
			b := make([]byte, 8)
			l.enc.ByteOrder().PutUint64(b, uint64(fill))
			l.buf.WriteBytes(b[:width]...)
		}
	}
	return nil
}

func (l *layout) align(ctx *Context, st *Statement) error {
	if st.Align == 0 || st.Align&(st.Align-1) != 0 {
		return Errorf(api.ErrAsmDirectiveValueRange, "alignment %d is not a power of two", st.Align)
	}
	off := uint64(l.buf.Len())
	pad := (st.Align - off%st.Align) % st.Align
	if pad == 0 || (st.MaxSkip != 0 && pad > st.MaxSkip) {
		return nil
	}
	if err := l.reserve(pad, 1); err != nil {
		return err
	}
	if st.Fill != nil {
		fill, err := ctx.Value(st.Fill)
		if err != nil {
			return err
		}
		for ; pad > 0 && l.buf.Err() == nil; pad-- {
			l.buf.WriteBytes(byte(fill))
		}
		return nil
	}
	nop := l.enc.Nop()
	for ; pad >= uint64(len(nop)) && l.buf.Err() == nil; pad -= uint64(len(nop)) {
		l.buf.WriteBytes(nop...)
	}
	for ; pad > 0 && l.buf.Err() == nil; pad-- {
		l.buf.WriteBytes(0)
	}
	return nil
}

// maxReserve bounds a single .space, .fill or alignment when no output limit is configured.
const maxReserve = math.MaxInt32

// reserve fails with api.ErrNoMem unless n elements of width bytes fit in the output.
func (l *layout) reserve(n uint64, width int) error {
	limit := uint64(maxReserve)
	if l.cfg.MaxOutput > 0 {
		limit = uint64(l.cfg.MaxOutput)
	}
	if n > limit/uint64(width) || uint64(l.buf.Len())+n*uint64(width) > limit {
		return &api.AssembleError{Code: api.ErrNoMem, Err: fmt.Errorf("output exceeds %d bytes", limit)}
	}
	return nil
}

// fitsWidth returns true if v is representable in width bytes either as a signed or an unsigned integer.
func fitsWidth(v int64, width int) bool {
	switch width {
	case 8:
		return true
	case 4:
		return v >= math.MinInt32 && v <= math.MaxUint32
	case 2:
		return v >= math.MinInt16 && v <= math.MaxUint16
	case 1:
		return v >= math.MinInt8 && v <= math.MaxUint8
	}
	return false
}

// FitsSigned returns true if v fits in a two's complement integer of the given number of bits.
func FitsSigned(v int64, bits uint) bool {
	if bits >= 64 {
		return true
	}
	lo := int64(-1) << (bits - 1)
	return v >= lo && v <= -lo-1
}

// FitsUnsigned returns true if v fits in an unsigned integer of the given number of bits.
func FitsUnsigned(v int64, bits uint) bool {
	if bits >= 64 {
		return true
	}
	return v >= 0 && uint64(v) < uint64(1)<<bits
}
