// Package perr implements the four-category error taxonomy of spec §7:
// IrMalformed, UnknownConstExpr, and AuxMismatch are fatal and propagate
// as a wrapped error out of pipeline.Run; ExternalUnmodeled is recovered
// locally (internal/extlib.ExternalUnmodeled) and only ever surfaces here
// as something to log at Warn, never to abort on.
//
// The teacher signals every one of these conditions with
// panic(fmt.Sprintf(...)) — "ill-typed copy", "unexpected ssa.Value",
// "cannot convert const" and the like, scattered through gen.go. This
// package gives those conditions names and, via Recover, a boundary that
// turns a panic into a returned error instead of letting it escape a
// package and crash the process on malformed input.
package perr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four categories. Use errors.Is against these,
// not string comparison, since every constructor below wraps one of them
// with %w.
var (
	ErrIrMalformed       = errors.New("ir malformed")
	ErrUnknownConstExpr  = errors.New("unknown constant expression")
	ErrAuxMismatch       = errors.New("auxiliary analysis mismatch")
	ErrExternalUnmodeled = errors.New("external function has no summary")
)

// IrMalformed wraps msg as an IrMalformed error: the IR violates an
// invariant the core assumes (e.g. a Store constraint with a non-pointer
// destination) rather than merely referencing a construct outside the
// core's vocabulary.
func IrMalformed(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrIrMalformed)
}

// UnknownConstExpr wraps msg: a constant expression the frontend could
// not reduce to a recognized ObjectId (e.g. an exotic go/constant.Kind).
func UnknownConstExpr(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrUnknownConstExpr)
}

// AuxMismatch wraps msg: the auxiliary flow-insensitive analysis
// (internal/aux) and the flow-sensitive solver disagree about a fact that
// must hold in both (e.g. aux reports empty points-to for an id the
// flow-sensitive solver has already resolved a target for).
func AuxMismatch(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrAuxMismatch)
}

// ExternalUnmodeled wraps msg: a call to an external function with no
// extlib summary was widened to UniversalSet. Non-fatal; callers log
// this at Warn and continue, per §7.
func ExternalUnmodeled(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrExternalUnmodeled)
}

// IsFatal reports whether err belongs to one of the three categories that
// must abort pipeline.Run, as opposed to ExternalUnmodeled.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIrMalformed) || errors.Is(err, ErrUnknownConstExpr) || errors.Is(err, ErrAuxMismatch)
}

// Recover converts a recovered panic value into an IrMalformed error, the
// pipeline.Run boundary's counterpart to the teacher's bare
// panic(fmt.Sprintf(...)) calls. r must be the result of a recover() call;
// Recover returns nil if r is nil (nothing was recovered).
func Recover(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return IrMalformed(err.Error())
	}
	return IrMalformed(fmt.Sprint(r))
}
