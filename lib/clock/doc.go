// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the control plane so that the
// scene-state broadcast loop and the auto-repair grace window can be
// driven deterministically in tests.
//
// Production code injects [Real]; tests inject [Fake] and call
// [FakeClock.Advance] to fire pending timers in deadline order.
// [FakeClock.WaitForTimers] closes the race between a goroutine
// registering a timer and the test advancing the clock past it.
package clock
