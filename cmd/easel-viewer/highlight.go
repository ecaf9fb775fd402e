// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"

	"github.com/alecthomas/chroma/v2/quick"
)

// highlightProgram renders program text with ANSI syntax coloring.
// The program dialect is a Python subset, so the Python lexer fits.
// Falls back to the plain text on any highlighting failure.
func highlightProgram(code string) string {
	var buffer bytes.Buffer
	if err := quick.Highlight(&buffer, code, "python", "terminal256", "monokai"); err != nil {
		return code
	}
	return buffer.String()
}
