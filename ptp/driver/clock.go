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

package driver

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/wrptp/clock"
	"github.com/facebook/wrptp/leapsectz"
	"github.com/facebook/wrptp/phc"
	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/ptime"
)

// ClockOps implements fsm.TimeOps on the system clock or a PHC
type ClockOps struct {
	id       int32
	name     string
	maxFreq  float64
	realtime bool
	locked   bool
	dev      *phc.Device

	leapFile string
	leaps    []leapsectz.LeapSecond
	leapErr  error
}

// NewSystemClock returns ClockOps for CLOCK_REALTIME
func NewSystemClock() (*ClockOps, error) {
	maxFreq, _, err := clock.MaxFreqPPB(clock.Realtime)
	if err != nil {
		return nil, err
	}
	return &ClockOps{id: clock.Realtime, name: "CLOCK_REALTIME", maxFreq: maxFreq, realtime: true}, nil
}

// NewPHCClock returns ClockOps for the PHC of iface
func NewPHCClock(iface string) (*ClockOps, error) {
	dev, err := phc.OpenIface(iface)
	if err != nil {
		return nil, fmt.Errorf("opening PHC of %s: %w", iface, err)
	}
	return &ClockOps{id: dev.ClockID(), name: dev.Name(), maxFreq: dev.MaxFreqPPB(), dev: dev}, nil
}

// Name returns the clock name
func (c *ClockOps) Name() string {
	return c.name
}

// Get implements fsm.TimeOps
func (c *ClockOps) Get() (ptime.Time, error) {
	sec, nsec, err := clock.Time(c.id)
	if err != nil {
		return ptime.Time{}, err
	}
	return ptime.New(sec, nsec), nil
}

// Set implements fsm.TimeOps
func (c *ClockOps) Set(t ptime.Time) error {
	c.locked = false
	ns := t.Nanoseconds()
	return clock.SetTime(c.id, ns/int64(time.Second), ns%int64(time.Second))
}

// Adjust implements fsm.TimeOps
func (c *ClockOps) Adjust(offsetNs int64, freqPPB float64) error {
	if offsetNs != 0 {
		if err := c.AdjustOffset(offsetNs); err != nil {
			return err
		}
	}
	freqPPB = max(min(freqPPB, c.maxFreq), -c.maxFreq)
	state, err := clock.AdjFreqPPB(c.id, freqPPB)
	if err != nil {
		return err
	}
	locked := offsetNs == 0
	// tell the kernel the system clock is disciplined, once per lock
	if locked && (!c.locked || state != 0) && c.realtime {
		if err := clock.SetSync(c.id); err != nil {
			log.Warningf("%s: %v", c.name, err)
		}
	}
	c.locked = locked
	return nil
}

// AdjustOffset implements fsm.TimeOps
func (c *ClockOps) AdjustOffset(offsetNs int64) error {
	c.locked = false
	_, err := clock.Step(c.id, time.Duration(offsetNs))
	return err
}

// ServoState implements fsm.TimeOps
func (c *ClockOps) ServoState() fsm.ClockLockState {
	if c.locked {
		return fsm.ClockLocked
	}
	return fsm.ClockUnlocked
}

// UTCOffset implements fsm.TimeOps. The kernel TAI offset is used when
// set, otherwise the offset comes from the leap second table.
func (c *ClockOps) UTCOffset() (int, bool, bool, error) {
	if c.realtime {
		tai, err := clock.ReadTAI(c.id)
		if err == nil && tai.Offset != 0 {
			return tai.Offset, tai.Leap59, tai.Leap61, nil
		}
	}
	ls, err := c.leapSeconds()
	if err != nil {
		log.Debugf("%s: no UTC offset: %v", c.name, err)
		return 0, false, false, fsm.ErrUnsupported
	}
	offset, leap59, leap61 := leapsectz.UTCOffset(ls, time.Now())
	return offset, leap59, leap61, nil
}

// leapSeconds loads the leap second table once
func (c *ClockOps) leapSeconds() ([]leapsectz.LeapSecond, error) {
	if c.leaps == nil && c.leapErr == nil {
		c.leaps, c.leapErr = leapsectz.Parse(c.leapFile)
	}
	return c.leaps, c.leapErr
}

// Close releases the PHC
func (c *ClockOps) Close() error {
	if c.dev == nil {
		return nil
	}
	return c.dev.Close()
}
