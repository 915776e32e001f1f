// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Atrium's standard CBOR encoding configuration.
//
// Everything that crosses the engine boundary or is written to a
// session archive goes through [Marshal] and [Unmarshal] so that the
// same logical value always produces identical bytes (Core
// Deterministic Encoding, RFC 8949 §4.2) and unknown fields are
// ignored on decode for forward compatibility.
package codec
