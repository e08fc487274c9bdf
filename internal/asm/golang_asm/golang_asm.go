// Package golang_asm wraps the golang-asm library (Go's own assembler back-end) as an independent encoder which
// tests use to cross-check the homemade encoders instruction by instruction.
package golang_asm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// Assembler builds a sequence of golang-asm instructions.
type Assembler struct {
	b *goasm.Builder
}

// NewAssembler returns an Assembler for a GOARCH name such as "amd64" or "arm64".
func NewAssembler(arch string) (*Assembler, error) {
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	return &Assembler{b: b}, nil
}

// NewProg returns an empty instruction to fill in and pass to AddInstruction.
func (a *Assembler) NewProg() *obj.Prog {
	return a.b.NewProg()
}

// AddInstruction appends an instruction.
func (a *Assembler) AddInstruction(p *obj.Prog) {
	a.b.AddInstruction(p)
}

// Assemble returns the machine code of all instructions added so far.
func (a *Assembler) Assemble() []byte {
	return a.b.Assemble()
}

// RegisterOperand returns an operand naming a golang-asm register constant.
func RegisterOperand(reg int16) obj.Addr {
	return obj.Addr{Type: obj.TYPE_REG, Reg: reg}
}

// ConstOperand returns an immediate operand.
func ConstOperand(v int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_CONST, Offset: v}
}

// MemoryOperand returns the memory operand base+offset(index*scale). index zero means no index.
func MemoryOperand(base int16, offset int64, index int16, scale int16) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: base, Offset: offset, Index: index, Scale: scale}
}

// Instruction assembles a single instruction "as from, to" where either operand may be the zero obj.Addr.
func Instruction(arch string, as obj.As, from, to obj.Addr) ([]byte, error) {
	a, err := NewAssembler(arch)
	if err != nil {
		return nil, err
	}
	// The first instruction becomes the function's text symbol, which some back-ends (e.g. arm64) never encode.
	// obj.ANOP takes its place and emits nothing on any architecture.
	nop := a.NewProg()
	nop.As = obj.ANOP
	a.AddInstruction(nop)

	p := a.NewProg()
	p.As, p.From, p.To = as, from, to
	a.AddInstruction(p)
	code := a.Assemble()
	if len(code) == 0 {
		return nil, fmt.Errorf("golang-asm produced no code for %v on %s", as, arch)
	}
	return code, nil
}
