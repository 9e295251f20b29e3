/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fsm

import (
	"maps"
)

// InstanceStatus is the exported view of one instance
type InstanceStatus struct {
	Name             string           `json:"name"`
	Index            int              `json:"index"`
	Iface            string           `json:"iface"`
	State            string           `json:"state"`
	Role             string           `json:"role"`
	LinkUp           bool             `json:"link_up"`
	PortIdentity     string           `json:"port_identity"`
	Decision         string           `json:"decision,omitempty"`
	ForeignMasters   int              `json:"foreign_masters"`
	ExtensionEnabled bool             `json:"extension_enabled"`
	Extension        ExtStatus        `json:"extension"`
	ServoState       string           `json:"servo_state"`
	OffsetNs         int64            `json:"offset_ns"`
	MeanPathDelayNs  int64            `json:"mean_path_delay_ns"`
	FreqPPB          float64          `json:"freq_ppb"`
	OffsetMeanNs     float64          `json:"offset_mean_ns"`
	OffsetStddevNs   float64          `json:"offset_stddev_ns"`
	Counters         map[string]int64 `json:"counters"`
}

// Status is a snapshot of the whole node
type Status struct {
	ClockIdentity       string           `json:"clock_identity"`
	GrandmasterIdentity string           `json:"grandmaster_identity"`
	ParentPortIdentity  string           `json:"parent_port_identity"`
	IsGrandmaster       bool             `json:"is_grandmaster"`
	StepsRemoved        uint16           `json:"steps_removed"`
	OffsetFromMasterNs  int64            `json:"offset_from_master_ns"`
	MeanPathDelayNs     int64            `json:"mean_path_delay_ns"`
	UTCOffset           int16            `json:"utc_offset"`
	UTCOffsetValid      bool             `json:"utc_offset_valid"`
	ClockState          string           `json:"clock_state"`
	Instances           []InstanceStatus `json:"instances"`
}

// Snapshot copies the node state. It must be called from the goroutine driving Step.
func (g *Globals) Snapshot() Status {
	st := Status{
		ClockIdentity:       g.DefaultDS.ClockIdentity.String(),
		GrandmasterIdentity: g.ParentDS.GrandmasterIdentity.String(),
		ParentPortIdentity:  g.ParentDS.ParentPortIdentity.String(),
		IsGrandmaster:       g.isGrandmaster(),
		StepsRemoved:        g.CurrentDS.StepsRemoved,
		OffsetFromMasterNs:  g.CurrentDS.OffsetFromMaster.Nanoseconds(),
		MeanPathDelayNs:     g.CurrentDS.MeanPathDelay.Nanoseconds(),
		UTCOffset:           g.TimePropertiesDS.CurrentUTCOffset,
		UTCOffsetValid:      g.TimePropertiesDS.CurrentUTCOffsetValid,
	}
	if g.timeOps != nil {
		st.ClockState = g.timeOps.ServoState().String()
	}
	for _, inst := range g.instances {
		ds := inst.servo.DS()
		st.Instances = append(st.Instances, InstanceStatus{
			Name:             inst.name,
			Index:            inst.index,
			Iface:            inst.cfg.Iface,
			State:            inst.state.String(),
			Role:             inst.cfg.Role.String(),
			LinkUp:           inst.linkUp,
			PortIdentity:     inst.portDS.PortIdentity.String(),
			Decision:         inst.decision,
			ForeignMasters:   len(inst.foreign),
			ExtensionEnabled: inst.extEnabled,
			Extension:        inst.ext.Status(inst),
			ServoState:       ds.State.String(),
			OffsetNs:         ds.Offset.Nanoseconds(),
			MeanPathDelayNs:  ds.MeanPathDelay.Nanoseconds(),
			FreqPPB:          ds.Freq,
			OffsetMeanNs:     ds.OffsetMean,
			OffsetStddevNs:   ds.OffsetStddev,
			Counters:         maps.Clone(inst.counters),
		})
	}
	return st
}
