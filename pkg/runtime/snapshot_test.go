// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/platform"
)

func TestSnapshotRoundTripsThroughCBOR(t *testing.T) {
	cfg := config.Default()
	rt, err := New(cfg, platform.Default(), NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := rt.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty CBOR payload")
	}

	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if decoded.MaxTasks != cfg.MaxTasks {
		t.Fatalf("decoded MaxTasks = %d, want %d", decoded.MaxTasks, cfg.MaxTasks)
	}
	if decoded.BudgetBytes != cfg.BudgetBytes {
		t.Fatalf("decoded BudgetBytes = %d, want %d", decoded.BudgetBytes, cfg.BudgetBytes)
	}
	if decoded.ArenaTotalBytes != rt.Layout.TotalBytes {
		t.Fatalf("decoded ArenaTotalBytes = %d, want %d", decoded.ArenaTotalBytes, rt.Layout.TotalBytes)
	}
}

func TestSnapshotReflectsRegisteredTopics(t *testing.T) {
	cfg := config.Default()
	rt, err := New(cfg, platform.Default(), NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt.Broker.RegisterTask(1)
	rt.Broker.Subscribe(10, 1)

	data, err := rt.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if decoded.TopicsActive != 1 {
		t.Fatalf("decoded TopicsActive = %d, want 1", decoded.TopicsActive)
	}
}
