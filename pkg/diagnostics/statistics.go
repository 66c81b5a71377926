// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diagnostics

import "fmt"

// Statistics accumulates system-wide error counters and derived rates,
// generalizing helios_protocol.Statistics from a single wire protocol to
// every emCore error kind.
type Statistics struct {
	StartTimeUS      uint64
	LastUpdateTimeUS uint64

	TotalReports uint64
	ByEvent      [9]uint64
	BySeverity   [5]uint64

	ReportRate float64 // reports/sec
	ErrorRate  float64 // warning-or-worse/sec
}

// NewStatistics constructs a tracker stamped with the current platform
// time.
func NewStatistics(nowUS uint64) *Statistics {
	return &Statistics{StartTimeUS: nowUS, LastUpdateTimeUS: nowUS}
}

// Update folds one reported Context into the running counters.
func (s *Statistics) Update(ctx Context) {
	s.TotalReports++
	if int(ctx.Event) < len(s.ByEvent) {
		s.ByEvent[ctx.Event]++
	}
	if int(ctx.Severity) < len(s.BySeverity) {
		s.BySeverity[ctx.Severity]++
	}
	s.LastUpdateTimeUS = ctx.Timestamp
}

// CalculateRates recomputes ReportRate and ErrorRate against nowUS.
func (s *Statistics) CalculateRates(nowUS uint64) {
	elapsedUS := nowUS - s.StartTimeUS
	if elapsedUS == 0 {
		return
	}
	elapsedSec := float64(elapsedUS) / 1_000_000
	s.ReportRate = float64(s.TotalReports) / elapsedSec

	errorCount := s.BySeverity[SeverityWarning] + s.BySeverity[SeverityError] +
		s.BySeverity[SeverityCritical] + s.BySeverity[SeverityFatal]
	s.ErrorRate = float64(errorCount) / elapsedSec
}

// String returns a formatted summary, mirroring
// helios_protocol.Statistics.String's report-card style.
func (s *Statistics) String() string {
	return fmt.Sprintf(
		"reports=%d rate=%.2f/s errors=%.2f/s (dropped=%d overflow=%d deadline=%d fault=%d timeout=%d stack=%d mem=%d state=%d watchdog=%d)",
		s.TotalReports, s.ReportRate, s.ErrorRate,
		s.ByEvent[EventMessageDropped], s.ByEvent[EventQueueOverflow], s.ByEvent[EventTaskDeadlineMiss],
		s.ByEvent[EventTaskFault], s.ByEvent[EventTaskTimeout], s.ByEvent[EventTaskStackOverflow],
		s.ByEvent[EventMemoryExhaustion], s.ByEvent[EventInvalidState], s.ByEvent[EventWatchdogTimeout],
	)
}

// Reset zeroes every counter and restamps the tracking window.
func (s *Statistics) Reset(nowUS uint64) {
	*s = Statistics{StartTimeUS: nowUS, LastUpdateTimeUS: nowUS}
}
