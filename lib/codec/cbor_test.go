// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestDeterministicEncoding(t *testing.T) {
	// Maps are the usual source of nondeterminism. Encode the same map
	// repeatedly and require byte-identical output.
	value := map[string]any{
		"identity": "alice",
		"sid":      "PA_x7k",
		"muted":    true,
		"order":    3,
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal failed on iteration %d: %v", i, err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("non-deterministic encoding on iteration %d:\n  %x\n  %x", i, first, again)
		}
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	type wide struct {
		A string `cbor:"1,keyasint"`
		B int    `cbor:"2,keyasint"`
		C bool   `cbor:"3,keyasint"`
	}
	type narrow struct {
		A string `cbor:"1,keyasint"`
	}

	data, err := Marshal(wide{A: "kept", B: 42, C: true})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got narrow
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal with extra fields failed: %v", err)
	}
	if got.A != "kept" {
		t.Errorf("unexpected field value: %q", got.A)
	}
}

func TestDefaultMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded any-typed map is %T, want map[string]any", decoded)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	type item struct {
		N int `cbor:"1,keyasint"`
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := 0; i < 5; i++ {
		if err := encoder.Encode(item{N: i}); err != nil {
			t.Fatalf("Encode %d failed: %v", i, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := 0; i < 5; i++ {
		var got item
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d failed: %v", i, err)
		}
		if got.N != i {
			t.Errorf("decoded item %d has N=%d", i, got.N)
		}
	}
}
