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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/wrptp/ptp/bmc"
	ptp "github.com/facebook/wrptp/ptp/protocol"
)

const maxForeignMasters = 5

// foreignMaster is an entry of the foreign master table
type foreignMaster struct {
	announce *ptp.Announce
	count    int
	lastSeen uint64
}

// addForeign records an Announce in the foreign master table
func (inst *Instance) addForeign(a *ptp.Announce) {
	now := inst.g.sched.Now()
	for _, fm := range inst.foreign {
		if fm.announce.SourcePortIdentity == a.SourcePortIdentity {
			fm.announce = a
			fm.lastSeen = now
			if fm.count < inst.g.cfg.ForeignMasterThreshold {
				fm.count++
			}
			return
		}
	}
	if len(inst.foreign) == maxForeignMasters {
		oldest := 0
		for i, fm := range inst.foreign {
			if fm.lastSeen < inst.foreign[oldest].lastSeen {
				oldest = i
			}
		}
		log.Debugf("%s: foreign master table full, dropping %s", inst.name, inst.foreign[oldest].announce.SourcePortIdentity)
		inst.foreign = append(inst.foreign[:oldest], inst.foreign[oldest+1:]...)
	}
	inst.foreign = append(inst.foreign, &foreignMaster{announce: a, count: 1, lastSeen: now})
}

// expireForeign drops records not refreshed within the announce receipt window
func (inst *Instance) expireForeign() {
	window := time.Duration(inst.portDS.AnnounceReceiptTimeout) * inst.portDS.LogAnnounceInterval.Duration()
	kept := inst.foreign[:0]
	for _, fm := range inst.foreign {
		if inst.g.sched.Since(fm.lastSeen) < window {
			kept = append(kept, fm)
		}
	}
	for i := len(kept); i < len(inst.foreign); i++ {
		inst.foreign[i] = nil
	}
	inst.foreign = kept
	if inst.erbest != nil && !inst.hasForeign(inst.erbest) {
		inst.erbest = nil
	}
}

func (inst *Instance) hasForeign(f *foreignMaster) bool {
	for _, fm := range inst.foreign {
		if fm == f {
			return true
		}
	}
	return false
}

// participates reports whether the instance takes part in the BMCA
func (inst *Instance) participates() bool {
	switch inst.state {
	case StateInitializing, StateFaulty, StateDisabled, StateAbscal:
		return false
	}
	return inst.linkUp
}

// computeErbest selects the best qualified foreign master of the port
func (inst *Instance) computeErbest() (*foreignMaster, bmc.Dataset) {
	var best *foreignMaster
	for _, fm := range inst.foreign {
		if fm.count < inst.g.cfg.ForeignMasterThreshold {
			continue
		}
		// all records share the receiving port
		if best == nil || bmc.DscmpAnnounce(fm.announce, best.announce).ABetter() {
			best = fm
		}
	}
	if best == nil {
		return nil, bmc.Dataset{}
	}
	return best, bmc.FromAnnounce(best.announce, inst.portDS.PortIdentity)
}

// localDataset is D0, the local clock as a BMCA candidate
func (g *Globals) localDataset() bmc.Dataset {
	id := ptp.PortIdentity{ClockIdentity: g.DefaultDS.ClockIdentity}
	return bmc.Dataset{
		Priority1:    g.DefaultDS.Priority1,
		Identity:     g.DefaultDS.ClockIdentity,
		Quality:      g.DefaultDS.ClockQuality,
		Priority2:    g.DefaultDS.Priority2,
		StepsRemoved: 0,
		Sender:       id,
		Receiver:     id,
	}
}

// RunBMCA runs the best master clock algorithm over all instances, updating
// recommendations and the parent datasets. It reports whether any
// recommendation changed.
func (g *Globals) RunBMCA() bool {
	g.forceBMCA = false
	g.sched.SetLog(&g.bmcaTimer, g.cfg.LogAnnounceInterval)

	erbestDS := make([]bmc.Dataset, len(g.instances))
	localEligible := !g.DefaultDS.SlaveOnly
	for i, inst := range g.instances {
		inst.erbest = nil
		if !inst.participates() {
			continue
		}
		inst.expireForeign()
		inst.erbest, erbestDS[i] = inst.computeErbest()
		if inst.erbest != nil && inst.cfg.Role == RoleSlave {
			localEligible = false
		}
	}

	// ebest, nil meaning the local clock
	var best *Instance
	var bestDS bmc.Dataset
	if localEligible {
		bestDS = g.localDataset()
	}
	for i, inst := range g.instances {
		if inst.erbest == nil {
			continue
		}
		if (best == nil && !localEligible) || bmc.Dscmp(&erbestDS[i], &bestDS).ABetter() {
			best, bestDS = inst, erbestDS[i]
		}
	}

	changed := false
	for i, inst := range g.instances {
		rec, decision := g.decide(inst, best, &bestDS, &erbestDS[i])
		if rec != inst.recommended {
			changed = true
			log.Debugf("%s: BMCA %s -> %s (%s)", inst.name, inst.recommended, rec, decision)
		}
		inst.recommended, inst.decision = rec, decision
	}
	if g.updateParent(best) {
		changed = true
	}
	return changed
}

// decide is the state decision algorithm for one instance
func (g *Globals) decide(inst *Instance, best *Instance, bestDS, erbestDS *bmc.Dataset) (State, string) {
	if !inst.participates() {
		return 0, ""
	}
	switch inst.cfg.Role {
	case RoleMaster:
		return StateMaster, "M1"
	case RoleSlave:
		if inst.erbest != nil {
			return StateSlave, "S1"
		}
		return StateListening, ""
	}
	if inst.erbest == nil && inst.state == StateListening {
		return StateListening, ""
	}
	if best == nil {
		if g.DefaultDS.SlaveOnly {
			return StateListening, ""
		}
		if g.DefaultDS.ClockQuality.ClockClass <= 127 {
			return StateMaster, "M1"
		}
		return StateMaster, "M2"
	}
	if best == inst {
		return StateSlave, "S1"
	}
	if g.DefaultDS.SlaveOnly {
		return StateListening, ""
	}
	// clock classes 1..127 compete with each port's erbest directly
	if g.DefaultDS.ClockQuality.ClockClass <= 127 {
		d0 := g.localDataset()
		if inst.erbest == nil || bmc.Dscmp(&d0, erbestDS).ABetter() {
			return StateMaster, "M1"
		}
		return StatePassive, "P1"
	}
	if inst.erbest != nil && bmc.Dscmp(bestDS, erbestDS) == bmc.ABetterTopo {
		return StatePassive, "P2"
	}
	return StateMaster, "M3"
}

// updateParent points the parent datasets at the ebest. It reports whether the parent changed.
func (g *Globals) updateParent(best *Instance) bool {
	if best == nil {
		if g.parent == nil {
			return false
		}
		log.Infof("local clock is grandmaster")
		g.becomeGrandmaster()
		return true
	}
	a := best.erbest.announce
	changed := g.parent != best || g.ParentDS.ParentPortIdentity != a.SourcePortIdentity
	g.parent = best
	g.ParentDS = ParentDS{
		ParentPortIdentity:      a.SourcePortIdentity,
		GrandmasterIdentity:     a.GrandmasterIdentity,
		GrandmasterClockQuality: a.GrandmasterClockQuality,
		GrandmasterPriority1:    a.GrandmasterPriority1,
		GrandmasterPriority2:    a.GrandmasterPriority2,
	}
	g.CurrentDS.StepsRemoved = a.StepsRemoved + 1
	g.TimePropertiesDS = timePropertiesFromAnnounce(a)
	if changed {
		log.Infof("%s: new parent %s, grandmaster %s", best.name, a.SourcePortIdentity, a.GrandmasterIdentity)
		best.parentChanged = true
	}
	return changed
}

// Ebest returns the instance holding the best master, nil when the local clock wins
func (g *Globals) Ebest() *Instance {
	return g.parent
}
