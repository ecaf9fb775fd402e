// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Request asks the service for a rendering program.
type Request struct {
	// Prompt is the user's natural-language description. Required for
	// fresh generation; for a repair it may be empty (the original
	// prompt travels in Repair.OriginPrompt).
	Prompt string

	// CurrentCode is the active program, if any. Included so the
	// service can produce incremental edits rather than starting
	// over.
	CurrentCode string

	// Repair is set when this is a corrective rewrite of a failing
	// program.
	Repair *RepairContext
}

// RepairContext carries everything the service needs to fix a broken
// program.
type RepairContext struct {
	// FailingCode is the program that produced the error.
	FailingCode string

	// ErrorMessage is the trapped error text, backtrace included.
	ErrorMessage string

	// ErrorSource is the failing position ("file:line:col") when
	// known.
	ErrorSource string

	// LastGoodCode is the most recent program that ran cleanly, when
	// one exists. The prompt includes a diff from it to the failing
	// code, which usually pins the regression to a few lines.
	LastGoodCode string

	// OriginPrompt is the user prompt that produced the failing code.
	OriginPrompt string

	// Attempt is the 1-based repair attempt number.
	Attempt int
}

// Result is a generated program.
type Result struct {
	// Code is the complete program text, fence markers stripped.
	Code string
}

// Service produces rendering programs. Implementations must be safe
// for concurrent use.
type Service interface {
	// Generate blocks until a program is available or ctx is done.
	Generate(ctx context.Context, request Request) (Result, error)
}

// Validate rejects requests that cannot produce anything useful.
func (request Request) Validate() error {
	if request.Repair == nil && strings.TrimSpace(request.Prompt) == "" {
		return fmt.Errorf("generate: request has neither a prompt nor a repair context")
	}
	if request.Repair != nil && request.Repair.FailingCode == "" {
		return fmt.Errorf("generate: repair context has no failing code")
	}
	return nil
}

// userMessage renders the request as the prompt text sent to the
// model.
func (request Request) userMessage() string {
	var b strings.Builder

	if request.Repair != nil {
		repair := request.Repair
		b.WriteString("The following program failed at runtime. Produce a corrected version.\n\n")
		if repair.OriginPrompt != "" {
			fmt.Fprintf(&b, "It was written for this request: %s\n\n", repair.OriginPrompt)
		}
		fmt.Fprintf(&b, "Error: %s\n", repair.ErrorMessage)
		if repair.ErrorSource != "" {
			fmt.Fprintf(&b, "At: %s\n", repair.ErrorSource)
		}
		if repair.Attempt > 1 {
			fmt.Fprintf(&b, "This is repair attempt %d; earlier corrections did not fix the error.\n", repair.Attempt)
		}
		b.WriteString("\nFailing program:\n```\n")
		b.WriteString(repair.FailingCode)
		b.WriteString("\n```\n")
		if repair.LastGoodCode != "" && repair.LastGoodCode != repair.FailingCode {
			b.WriteString("\nChanges since the last working version (the regression is in here):\n```\n")
			b.WriteString(diffText(repair.LastGoodCode, repair.FailingCode))
			b.WriteString("```\n")
		}
		return b.String()
	}

	b.WriteString(request.Prompt)
	if request.CurrentCode != "" {
		b.WriteString("\n\nThe current program, to modify rather than replace where possible:\n```\n")
		b.WriteString(request.CurrentCode)
		b.WriteString("\n```\n")
	}
	return b.String()
}

// diffText renders a compact insert/delete view of the change from
// previous to current.
func diffText(previous, current string) string {
	matcher := diffmatchpatch.New()
	diffs := matcher.DiffMain(previous, current, true)
	diffs = matcher.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, diff := range diffs {
		text := strings.TrimRight(diff.Text, "\n")
		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			for _, line := range strings.Split(text, "\n") {
				fmt.Fprintf(&b, "- %s\n", line)
			}
		case diffmatchpatch.DiffInsert:
			for _, line := range strings.Split(text, "\n") {
				fmt.Fprintf(&b, "+ %s\n", line)
			}
		case diffmatchpatch.DiffEqual:
			// Unchanged context is elided; the full failing program is
			// already in the prompt.
		}
	}
	return b.String()
}

// extractCode strips a Markdown code fence from a model reply. Models
// reliably fence program output even when told not to; replies with
// no fence are taken verbatim.
func extractCode(reply string) string {
	trimmed := strings.TrimSpace(reply)

	start := strings.Index(trimmed, "```")
	if start == -1 {
		return trimmed
	}
	rest := trimmed[start+3:]
	// Skip the language tag on the opening fence line.
	if newline := strings.IndexByte(rest, '\n'); newline != -1 {
		rest = rest[newline+1:]
	}
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
