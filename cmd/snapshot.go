// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/platform"
	"github.com/Thermoquad/emcore/pkg/runtime"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print a CBOR-encoded config/diagnostics snapshot of a fresh runtime",
	Long: `snapshot builds a Runtime from the default Config, immediately captures
its config and live counters as CBOR via Runtime.Snapshot, decodes it back
with DecodeSnapshot to confirm the round trip, and prints both the hex
encoding and the decoded fields.`,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	rt, err := runtime.New(cfg, platform.Default(), runtime.NopLogger())
	if err != nil {
		return fmt.Errorf("emcored: %w", err)
	}

	data, err := rt.Snapshot()
	if err != nil {
		return fmt.Errorf("emcored: encode snapshot: %w", err)
	}

	decoded, err := runtime.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("emcored: decode snapshot: %w", err)
	}

	fmt.Printf("cbor (%d bytes): %s\n\n", len(data), hex.EncodeToString(data))
	fmt.Printf("max_tasks=%d max_topics=%d budget_bytes=%d arena_total_bytes=%d\n",
		decoded.MaxTasks, decoded.MaxTopics, decoded.BudgetBytes, decoded.ArenaTotalBytes)
	fmt.Printf("tasks_registered=%d topics_active=%d error_count=%d\n",
		decoded.TasksRegistered, decoded.TopicsActive, decoded.ErrorCount)

	return nil
}
