// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/emcore/pkg/emtypes"
)

// ConfigSnapshot is a CBOR-encodable, off-box-inspectable view of runtime
// configuration and live counters (system-overview component W), mirroring
// the payload shape of the teacher's pkg/fusain CBOR messages
// ([msg_type-equivalent fields plus a flat map of counters]) but built from
// this runtime's own Config and subsystem state rather than a wire packet.
type ConfigSnapshot struct {
	MaxTasks               int  `cbor:"max_tasks"`
	MaxTopics              int  `cbor:"max_topics"`
	MailboxQueueCapacity   int  `cbor:"mailbox_queue_capacity"`
	MaxSubscribersPerTopic int  `cbor:"max_subscribers_per_topic"`
	EnableZeroCopy         bool `cbor:"enable_zero_copy"`
	EnableEventLogs        bool `cbor:"enable_event_logs"`
	BudgetBytes            int  `cbor:"budget_bytes"`
	ArenaTotalBytes        int  `cbor:"arena_total_bytes"`

	TasksRegistered  int    `cbor:"tasks_registered"`
	TopicsActive     int    `cbor:"topics_active"`
	DroppedOverflow  uint32 `cbor:"dropped_overflow"`
	MissedDeadlines  uint32 `cbor:"missed_deadlines"`
	WatchdogTimeouts uint32 `cbor:"watchdog_timeout_count"`
	ContextSwitches  uint32 `cbor:"context_switches"`
	CPUUtilization   uint8  `cbor:"cpu_utilization_pct"`
	ErrorCount       uint32 `cbor:"error_count"`
}

// Snapshot builds a ConfigSnapshot of the runtime's current configuration
// and live counters and marshals it to CBOR via fxamacker/cbor/v2, the
// same codec the teacher uses for its Fusain protocol payloads
// (pkg/fusain/cbor.go), repurposed here for the diagnostics/config
// surface the CLI exposes rather than the wire packet format.
func (rt *Runtime) Snapshot() ([]byte, error) {
	snap := ConfigSnapshot{
		MaxTasks:               rt.Config.MaxTasks,
		MaxTopics:              rt.Config.MaxTopics,
		MailboxQueueCapacity:   rt.Config.MailboxQueueCapacity,
		MaxSubscribersPerTopic: rt.Config.MaxSubscribersPerTopic,
		EnableZeroCopy:         rt.Config.EnableZeroCopy,
		EnableEventLogs:        rt.Config.EnableEventLogs,
		BudgetBytes:            rt.Config.BudgetBytes,
		ArenaTotalBytes:        rt.Layout.TotalBytes,

		TasksRegistered: rt.Scheduler.TaskCount(),
		ContextSwitches: rt.Scheduler.ContextSwitches(),
		CPUUtilization:  rt.Scheduler.CPUUtilization(),
		ErrorCount:      rt.Errors.ErrorCount(),
	}
	if rt.Broker != nil {
		snap.TopicsActive = rt.Broker.TopicCount()
	}
	var missed, timeouts uint32
	var dropped uint64
	for i := 0; i < rt.Scheduler.TaskCount(); i++ {
		id := emtypes.TaskID(i)
		if stats, code := rt.Scheduler.Stats(id); code == emtypes.Success {
			missed += stats.MissedDeadlines
		}
		if rt.Broker != nil {
			dropped += rt.Broker.DroppedOverflow(id)
		}
		timeouts += rt.Watchdog.TimeoutCount(id)
	}
	snap.MissedDeadlines = missed
	snap.DroppedOverflow = uint32(dropped)
	snap.WatchdogTimeouts = timeouts

	return cbor.Marshal(snap)
}

// DecodeSnapshot parses bytes produced by Runtime.Snapshot; the CLI's
// "emcored snapshot" command uses it to round-trip the encoding.
func DecodeSnapshot(data []byte) (ConfigSnapshot, error) {
	var snap ConfigSnapshot
	err := cbor.Unmarshal(data, &snap)
	return snap, err
}
