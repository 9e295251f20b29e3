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

/*
Package timeout implements the non-blocking deadline registry used by the
PTP state machine. Timers never block: callers check Expired and use
Remaining as the hint for when to be called again.
*/
package timeout

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy selects how a nominal interval is randomized when a timer is armed
type Policy uint8

// Randomization policies
const (
	PolicyNone Policy = iota
	PolicyRange70to130
	PolicyRange0to200
)

var policyToString = map[Policy]string{
	PolicyNone:         "NONE",
	PolicyRange70to130: "RANGE_70_130",
	PolicyRange0to200:  "RANGE_0_200",
}

func (p Policy) String() string {
	if s, ok := policyToString[p]; ok {
		return s
	}
	return fmt.Sprintf("POLICY(%d)", p)
}

// Never is returned by Remaining for timers that are not armed
const Never = time.Duration(math.MaxInt64)

// Source is a monotonic tick counter
type Source interface {
	Ticks() uint64
}

// Timer is one deadline slot
type Timer struct {
	Name     string
	Policy   Policy
	deadline uint64
	armed    bool
}

// NewTimer returns an unset timer
func NewTimer(name string, policy Policy) Timer {
	return Timer{Name: name, Policy: policy}
}

// Armed reports whether the timer has a deadline
func (t *Timer) Armed() bool {
	return t.armed
}

// Scheduler arms and checks timers against a tick source
type Scheduler struct {
	src  Source
	tick time.Duration
	rnd  *rand.Rand
}

// NewScheduler returns a Scheduler for src, where one tick lasts tick.
// rnd may be nil, in which case a randomly seeded generator is used.
func NewScheduler(src Source, tick time.Duration, rnd *rand.Rand) *Scheduler {
	if tick <= 0 {
		tick = time.Millisecond
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Scheduler{src: src, tick: tick, rnd: rnd}
}

// Now returns the current tick count
func (s *Scheduler) Now() uint64 {
	return s.src.Ticks()
}

// Interval applies the randomization policy to a nominal interval in ms
func (s *Scheduler) Interval(ms int, p Policy) int {
	if ms <= 0 {
		return 0
	}
	switch p {
	case PolicyRange70to130:
		return ms * (70 + s.rnd.IntN(61)) / 100
	case PolicyRange0to200:
		return ms * s.rnd.IntN(201) / 100
	}
	return ms
}

// Set arms t to expire after ms milliseconds, randomized per the timer policy
func (s *Scheduler) Set(t *Timer, ms int) {
	d := time.Duration(s.Interval(ms, t.Policy)) * time.Millisecond
	t.deadline = s.src.Ticks() + uint64(d/s.tick)
	t.armed = true
}

// SetLog arms t with the PTP log interval 2^logInterval seconds
func (s *Scheduler) SetLog(t *Timer, logInterval int8) {
	s.Set(t, LogIntervalMs(logInterval))
}

// Clear unsets t, it will never expire
func (s *Scheduler) Clear(t *Timer) {
	t.armed = false
	t.deadline = 0
}

// Expired reports whether an armed timer has reached its deadline
func (s *Scheduler) Expired(t *Timer) bool {
	if !t.armed {
		return false
	}
	return s.src.Ticks() >= t.deadline
}

// Remaining returns the time until t expires, 0 if due and Never if unset
func (s *Scheduler) Remaining(t *Timer) time.Duration {
	if !t.armed {
		return Never
	}
	now := s.src.Ticks()
	if now >= t.deadline {
		return 0
	}
	// rounded up so a caller sleeping for the result finds the timer due
	d := time.Duration(t.deadline-now) * s.tick
	return (d + time.Millisecond - 1).Truncate(time.Millisecond)
}

// Since returns the time elapsed since the tick count then
func (s *Scheduler) Since(then uint64) time.Duration {
	now := s.src.Ticks()
	if now <= then {
		return 0
	}
	return time.Duration(now-then) * s.tick
}

// LogIntervalMs converts a PTP log interval to milliseconds
func LogIntervalMs(logInterval int8) int {
	if logInterval >= 0 {
		return 1000 << uint(logInterval)
	}
	return 1000 >> uint(-logInterval)
}

// Min returns the smallest of the given delays
func Min(delays ...time.Duration) time.Duration {
	m := Never
	for _, d := range delays {
		if d < m {
			m = d
		}
	}
	return m
}

// Monotonic is a Source counting milliseconds since it was created
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a Monotonic source starting at zero
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Ticks returns elapsed milliseconds
func (m *Monotonic) Ticks() uint64 {
	return uint64(time.Since(m.start) / time.Millisecond)
}
