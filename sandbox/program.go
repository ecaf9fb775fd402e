// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// programFilename is the synthetic filename evaluation errors point
// at. Generated programs arrive as strings; there is no real file.
const programFilename = "program.star"

// DefaultStepLimit bounds the Starlark interpreter. Generated code
// occasionally produces accidental unbounded loops; the step budget
// turns those into a trapped error event instead of a wedged sandbox.
const DefaultStepLimit = 50_000_000

// RunError is a trapped program failure: evaluation errors, syntax
// errors, step-budget exhaustion, and interpreter panics all
// normalize to this one shape, which maps directly onto the error
// event payload.
type RunError struct {
	// Message is the failure text, including the Starlark backtrace
	// for evaluation errors (the generation service uses it to write
	// a corrective rewrite).
	Message string

	// Source is the innermost failing position as "file:line:col",
	// when one is known.
	Source string
}

func (e *RunError) Error() string { return e.Message }

// programOptions enables the imperative dialect generated programs
// tend to use: while loops, set literals, top-level if/for, and
// global reassignment.
var programOptions = &syntax.FileOptions{
	Set:               true,
	While:             true,
	TopLevelControl:   true,
	GlobalReassign:    true,
	LoadBindsGlobally: false,
	Recursion:         true,
}

// runProgram evaluates source with the given builtin environment and
// step budget. Returns nil on success. Never panics: every failure
// mode, including interpreter panics from pathological input, comes
// back as a *RunError.
func runProgram(source string, predeclared starlark.StringDict, stepLimit uint64) (runError *RunError) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runError = &RunError{Message: fmt.Sprintf("internal interpreter fault: %v", recovered)}
		}
	}()

	if stepLimit == 0 {
		stepLimit = DefaultStepLimit
	}
	thread := &starlark.Thread{Name: "easel-program"}
	thread.SetMaxExecutionSteps(stepLimit)

	_, err := starlark.ExecFileOptions(programOptions, thread, programFilename, source, predeclared)
	if err != nil {
		return normalizeRunError(err)
	}
	return nil
}

// normalizeRunError converts the interpreter's error taxonomy into a
// RunError with a best-effort source position.
func normalizeRunError(err error) *RunError {
	var evalError *starlark.EvalError
	if errors.As(err, &evalError) {
		runError := &RunError{Message: evalError.Error()}
		if len(evalError.CallStack) > 0 {
			// Innermost frame is the failing one.
			frame := evalError.CallStack.At(len(evalError.CallStack) - 1)
			runError.Source = frame.Pos.String()
		}
		return runError
	}

	var syntaxError syntax.Error
	if errors.As(err, &syntaxError) {
		return &RunError{Message: syntaxError.Msg, Source: syntaxError.Pos.String()}
	}

	var resolveErrors resolve.ErrorList
	if errors.As(err, &resolveErrors) && len(resolveErrors) > 0 {
		first := resolveErrors[0]
		return &RunError{Message: first.Msg, Source: first.Pos.String()}
	}

	return &RunError{Message: err.Error()}
}
