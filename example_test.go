package keystone

import (
	"errors"
	"fmt"
	"log"

	"github.com/tetratelabs/keystone/api"
)

// This is an example of how to assemble x86-64 source into machine code.
func Example() {
	// Open an engine for the architecture and mode of the code.
	e, err := Open(api.ArchX86, api.Mode64)
	if err != nil {
		log.Panicln(err)
	}
	// Closes the engine.
	defer e.Close()

	// Statements are separated by newlines or semicolons.
	enc, err := e.Assemble("mov eax, 1; ret", 0x1000)
	if err != nil {
		log.Panicln(err)
	}
	fmt.Printf("%x %d\n", enc.Bytes, enc.Statements)

	// Output:
	// b801000000c3 2
}

// This shows how to find which line failed and why.
func Example_error() {
	e, err := Open(api.ArchX86, api.Mode32)
	if err != nil {
		log.Panicln(err)
	}
	defer e.Close()

	_, err = e.Assemble("nop\nfoo eax", 0)

	var ae *api.AssembleError
	if errors.As(err, &ae) {
		fmt.Println(ae.Line, uint32(ae.Code), errors.Is(err, api.ErrAsmMnemonicFail))
	}

	// Output:
	// 2 514 true
}

// This shows that engines for other architectures use GNU assembler syntax.
func Example_arm64() {
	e, err := Open(api.ArchARM64, api.ModeLittleEndian)
	if err != nil {
		log.Panicln(err)
	}
	defer e.Close()

	enc, err := e.Assemble("ret", 0)
	if err != nil {
		log.Panicln(err)
	}
	fmt.Printf("%x %s\n", enc.Bytes, e.Syntax())

	// Output:
	// c0035fd6 gas
}
