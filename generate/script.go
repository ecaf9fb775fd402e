// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedService implements [Service] from a canned reply sequence.
// Each Generate call consumes the next step. Tests use it to drive
// the repair loop through exact success and failure sequences without
// a live model.
type ScriptedService struct {
	mu       sync.Mutex
	steps    []ScriptStep
	position int
	requests []Request
}

// ScriptStep is one canned reply: a program, or an error.
type ScriptStep struct {
	Code string
	Err  error
}

// NewScriptedService creates a ScriptedService that replays steps in
// order.
func NewScriptedService(steps ...ScriptStep) *ScriptedService {
	return &ScriptedService{steps: steps}
}

// Generate returns the next canned step. Calls past the end of the
// script fail; a test that trips this asked for more generations than
// it scripted.
func (service *ScriptedService) Generate(ctx context.Context, request Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := request.Validate(); err != nil {
		return Result{}, err
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	service.requests = append(service.requests, request)
	if service.position >= len(service.steps) {
		return Result{}, fmt.Errorf("generate: script exhausted after %d calls", service.position)
	}
	step := service.steps[service.position]
	service.position++

	if step.Err != nil {
		return Result{}, step.Err
	}
	return Result{Code: step.Code}, nil
}

// Requests returns a copy of every request seen so far, in order.
func (service *ScriptedService) Requests() []Request {
	service.mu.Lock()
	defer service.mu.Unlock()
	return append([]Request(nil), service.requests...)
}

// Calls returns how many times Generate was invoked.
func (service *ScriptedService) Calls() int {
	service.mu.Lock()
	defer service.mu.Unlock()
	return len(service.requests)
}
