package asm

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/keystone/api"
)

// ErrRelax is returned by Encoder.Encode when a displacement does not fit the short form selected by Context.Long.
var ErrRelax = errors.New("displacement does not fit the short encoding")

// Errorf returns an *api.AssembleError with the given code. The line is filled in by the caller that knows it.
func Errorf(code api.Err, format string, args ...interface{}) error {
	return &api.AssembleError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ErrorMnemonic is the error for an instruction the encoder does not know.
func ErrorMnemonic(st *Statement) error {
	return Errorf(api.ErrAsmMnemonicFail, "unknown instruction %q", st.Mnemonic)
}

// ErrorOperands is the error for operands not matching any form of a known instruction.
func ErrorOperands(st *Statement) error {
	return Errorf(api.ErrAsmInvalidOperand, "invalid operands for %s", st)
}

// ErrorMissingFeature is the error for an instruction form which exists but is unavailable in the current mode.
func ErrorMissingFeature(st *Statement, feature string) error {
	return Errorf(api.ErrAsmMissingFeature, "%s requires %s", st, feature)
}

// WithLine sets the line of err if it is an *api.AssembleError without one, and converts other errors.
func WithLine(err error, line int) error {
	var ae *api.AssembleError
	if errors.As(err, &ae) {
		if ae.Line == 0 {
			ae.Line = line
		}
		return ae
	}
	var code api.Err
	if errors.As(err, &code) {
		return &api.AssembleError{Code: code, Line: line}
	}
	return &api.AssembleError{Code: api.ErrAsmInvalidOperand, Line: line, Err: err}
}
