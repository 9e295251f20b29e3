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
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/timeout"
)

// Globals is the node: the local clock, its datasets and all instances
type Globals struct {
	cfg     Config
	sched   *timeout.Scheduler
	timeOps TimeOps

	instances []*Instance
	bmcaTimer timeout.Timer
	forceBMCA bool
	// instance holding the parent port, nil while the local clock is grandmaster
	parent *Instance

	DefaultDS        DefaultDS
	CurrentDS        CurrentDS
	ParentDS         ParentDS
	TimePropertiesDS TimePropertiesDS
}

// NewGlobals returns a node without instances
func NewGlobals(cfg Config, sched *timeout.Scheduler, timeOps TimeOps) *Globals {
	g := &Globals{
		cfg:       cfg,
		sched:     sched,
		timeOps:   timeOps,
		bmcaTimer: timeout.NewTimer("BMCA", timeout.PolicyNone),
		DefaultDS: DefaultDS{
			ClockQuality: cfg.ClockQuality,
			Priority1:    cfg.Priority1,
			Priority2:    cfg.Priority2,
			DomainNumber: cfg.DomainNumber,
			SlaveOnly:    cfg.SlaveOnly,
		},
	}
	if cfg.SlaveOnly {
		g.DefaultDS.ClockQuality.ClockClass = ptp.ClockClassSlaveOnly
	}
	g.becomeGrandmaster()
	sched.SetLog(&g.bmcaTimer, cfg.LogAnnounceInterval)
	return g
}

// Config returns the node configuration
func (g *Globals) Config() Config {
	return g.cfg
}

// Scheduler returns the timer scheduler shared by all instances
func (g *Globals) Scheduler() *timeout.Scheduler {
	return g.sched
}

// TimeOps returns the local clock
func (g *Globals) TimeOps() TimeOps {
	return g.timeOps
}

// AddInstance creates a port. A nil ext means plain PTP.
func (g *Globals) AddInstance(cfg InstanceConfig, net NetworkIO, ext Extension) *Instance {
	inst := &Instance{
		name:       cfg.Name,
		index:      len(g.instances),
		cfg:        cfg,
		g:          g,
		net:        net,
		ext:        ext,
		hasExt:     ext != nil,
		state:      StateInitializing,
		isNewState: true,
		counters:   map[string]int64{},
	}
	if ext == nil {
		inst.ext = NoExtension{}
	}
	for i := range inst.timers {
		inst.timers[i] = timeout.NewTimer(slotDefs[i].name, slotDefs[i].policy)
	}
	inst.servo = newSlaveServo(g.cfg)
	g.instances = append(g.instances, inst)
	g.DefaultDS.NumberPorts = uint16(len(g.instances))
	return inst
}

// Instances returns all ports in index order
func (g *Globals) Instances() []*Instance {
	return g.instances
}

// ForceBMCA makes the next Step run the BMCA regardless of its timer
func (g *Globals) ForceBMCA() {
	g.forceBMCA = true
}

// Step runs every instance once, rx[i] being the packet received by instance i
// if any, then the BMCA when it is due. It returns how long the caller may
// sleep if nothing is received meanwhile.
func (g *Globals) Step(rx []*Packet) time.Duration {
	delay := timeout.Never
	for i, inst := range g.instances {
		var pkt *Packet
		if i < len(rx) {
			pkt = rx[i]
		}
		delay = min(delay, inst.Run(pkt))
	}
	if g.forceBMCA || g.sched.Expired(&g.bmcaTimer) {
		if g.RunBMCA() {
			delay = 0
		}
	}
	return min(delay, g.sched.Remaining(&g.bmcaTimer))
}

// isGrandmaster reports whether the local clock is the best clock
func (g *Globals) isGrandmaster() bool {
	return g.parent == nil
}

// becomeGrandmaster points the parent and time properties datasets at the local clock
func (g *Globals) becomeGrandmaster() {
	g.parent = nil
	g.ParentDS = ParentDS{
		ParentPortIdentity:      ptp.PortIdentity{ClockIdentity: g.DefaultDS.ClockIdentity},
		GrandmasterIdentity:     g.DefaultDS.ClockIdentity,
		GrandmasterClockQuality: g.DefaultDS.ClockQuality,
		GrandmasterPriority1:    g.DefaultDS.Priority1,
		GrandmasterPriority2:    g.DefaultDS.Priority2,
	}
	g.CurrentDS = CurrentDS{}
	g.TimePropertiesDS = TimePropertiesDS{
		CurrentUTCOffset: g.cfg.UTCOffset,
		PTPTimescale:     true,
		TimeSource:       g.cfg.TimeSource,
	}
	g.refreshTimeProperties()
}

// refreshTimeProperties reloads the UTC offset and leap flags from the local clock
func (g *Globals) refreshTimeProperties() {
	if g.timeOps == nil {
		return
	}
	off, leap59, leap61, err := g.timeOps.UTCOffset()
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			log.Warningf("reading UTC offset: %v", err)
		}
		return
	}
	tp := &g.TimePropertiesDS
	tp.CurrentUTCOffset = int16(off)
	tp.CurrentUTCOffsetValid = true
	tp.Leap59 = leap59
	tp.Leap61 = leap61
}
