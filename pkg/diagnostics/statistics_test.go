// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diagnostics

import (
	"strings"
	"testing"

	"github.com/Thermoquad/emcore/pkg/emtypes"
)

func TestStatisticsUpdateBucketsByEventAndSeverity(t *testing.T) {
	s := NewStatistics(0)
	s.Update(Context{Event: EventQueueOverflow, Severity: SeverityWarning, Timestamp: 1_000_000})
	s.Update(Context{Event: EventQueueOverflow, Severity: SeverityWarning, Timestamp: 2_000_000})
	s.Update(Context{Event: EventTaskFault, Severity: SeverityCritical, Timestamp: 3_000_000})

	if s.TotalReports != 3 {
		t.Fatalf("total reports = %d, want 3", s.TotalReports)
	}
	if s.ByEvent[EventQueueOverflow] != 2 {
		t.Fatalf("queue overflow count = %d, want 2", s.ByEvent[EventQueueOverflow])
	}
	if s.BySeverity[SeverityCritical] != 1 {
		t.Fatalf("critical count = %d, want 1", s.BySeverity[SeverityCritical])
	}
}

func TestCalculateRatesDerivesPerSecondFigures(t *testing.T) {
	s := NewStatistics(0)
	for i := 0; i < 10; i++ {
		s.Update(Context{Event: EventMessageDropped, Severity: SeverityInfo})
	}
	s.Update(Context{Event: EventTaskTimeout, Severity: SeverityError})

	s.CalculateRates(2_000_000) // 2 seconds elapsed
	if s.ReportRate != 5.5 {
		t.Fatalf("report rate = %v, want 5.5", s.ReportRate)
	}
	if s.ErrorRate != 0.5 {
		t.Fatalf("error rate = %v, want 0.5", s.ErrorRate)
	}
}

func TestStringIncludesEventCounts(t *testing.T) {
	s := NewStatistics(0)
	s.Update(Context{Event: EventWatchdogTimeout, Severity: SeverityFatal})
	out := s.String()
	if !strings.Contains(out, "watchdog=1") {
		t.Fatalf("String() = %q, want it to mention watchdog=1", out)
	}
}

func TestResetRestampsWindowAndClearsCounters(t *testing.T) {
	s := NewStatistics(0)
	s.Update(Context{Event: EventMemoryExhaustion, Severity: SeverityCritical, Code: emtypes.OutOfMemory})
	s.Reset(9_000)
	if s.TotalReports != 0 || s.StartTimeUS != 9_000 {
		t.Fatalf("reset state = %+v, want zeroed counters at StartTimeUS=9000", s)
	}
}
