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
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
)

// DefaultDS describes the local clock
type DefaultDS struct {
	ClockIdentity ptp.ClockIdentity
	NumberPorts   uint16
	ClockQuality  ptp.ClockQuality
	Priority1     uint8
	Priority2     uint8
	DomainNumber  uint8
	SlaveOnly     bool
}

// CurrentDS holds the synchronization results
type CurrentDS struct {
	StepsRemoved     uint16
	OffsetFromMaster ptime.Time
	MeanPathDelay    ptime.Time
}

// ParentDS describes the parent port and the grandmaster
type ParentDS struct {
	ParentPortIdentity      ptp.PortIdentity
	GrandmasterIdentity     ptp.ClockIdentity
	GrandmasterClockQuality ptp.ClockQuality
	GrandmasterPriority1    uint8
	GrandmasterPriority2    uint8
}

// TimePropertiesDS is distributed by the grandmaster
type TimePropertiesDS struct {
	CurrentUTCOffset      int16
	CurrentUTCOffsetValid bool
	Leap59                bool
	Leap61                bool
	TimeTraceable         bool
	FrequencyTraceable    bool
	PTPTimescale          bool
	TimeSource            ptp.TimeSource
}

// flags encodes the time properties into flagField bits
func (t *TimePropertiesDS) flags() uint16 {
	var f uint16
	for bit, set := range map[uint16]bool{
		ptp.FlagLeap61:         t.Leap61,
		ptp.FlagLeap59:         t.Leap59,
		ptp.FlagUTCOffsetValid: t.CurrentUTCOffsetValid,
		ptp.FlagPTPTimescale:   t.PTPTimescale,
		ptp.FlagTimeTraceable:  t.TimeTraceable,
		ptp.FlagFreqTraceable:  t.FrequencyTraceable,
	} {
		if set {
			f |= bit
		}
	}
	return f
}

// timePropertiesFromAnnounce copies what the parent distributes
func timePropertiesFromAnnounce(a *ptp.Announce) TimePropertiesDS {
	return TimePropertiesDS{
		CurrentUTCOffset:      a.CurrentUTCOffset,
		CurrentUTCOffsetValid: a.Flag(ptp.FlagUTCOffsetValid),
		Leap59:                a.Flag(ptp.FlagLeap59),
		Leap61:                a.Flag(ptp.FlagLeap61),
		TimeTraceable:         a.Flag(ptp.FlagTimeTraceable),
		FrequencyTraceable:    a.Flag(ptp.FlagFreqTraceable),
		PTPTimescale:          a.Flag(ptp.FlagPTPTimescale),
		TimeSource:            a.TimeSource,
	}
}

// PortDS is the per-port dataset
type PortDS struct {
	PortIdentity           ptp.PortIdentity
	LogMinDelayReqInterval ptp.LogInterval
	LogAnnounceInterval    ptp.LogInterval
	AnnounceReceiptTimeout uint8
	LogSyncInterval        ptp.LogInterval
	VersionNumber          uint8
}
