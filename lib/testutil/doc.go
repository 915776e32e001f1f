// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared across Atrium's
// tests: channel assertions with timeout safety valves and unique
// identifier minting.
package testutil
