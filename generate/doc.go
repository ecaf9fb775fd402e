// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package generate produces rendering programs from natural-language
// prompts. The control plane is agnostic about where programs come
// from: [Service] is the only contract, [HTTPService] implements it
// against an OpenAI-compatible chat completion API, and
// [ScriptedService] implements it from a canned sequence for tests
// and offline use.
//
// Requests come in two flavors. A fresh request carries the user's
// prompt and optionally the current program as context. A repair
// request additionally carries the failing program and the trapped
// error; the service is asked for a corrective rewrite, and the
// prompt includes a diff against the last working program when one is
// known, which localizes the regression for the model.
package generate
