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

package servo

import (
	"math"

	log "github.com/sirupsen/logrus"
)

const (
	kpScale = 0.7
	kiScale = 0.3

	maxKpNormMax = 1.0
	maxKiNormMax = 2.0

	freqEstMargin = 0.001
)

// PiConfig holds the proportional and integral constants
type PiConfig struct {
	KpScale    float64 `yaml:"kp_scale"`
	KpExponent float64 `yaml:"kp_exponent"`
	KpNormMax  float64 `yaml:"kp_norm_max"`
	KiScale    float64 `yaml:"ki_scale"`
	KiExponent float64 `yaml:"ki_exponent"`
	KiNormMax  float64 `yaml:"ki_norm_max"`
}

// DefaultPiConfig returns the PI constants
func DefaultPiConfig() PiConfig {
	return PiConfig{
		KpScale:   kpScale,
		KpNormMax: maxKpNormMax,
		KiScale:   kiScale,
		KiNormMax: maxKiNormMax,
	}
}

// PiServo is a proportional-integral servo
type PiServo struct {
	cfg         Config
	pi          PiConfig
	firstUpdate bool
	offset      [2]int64
	local       [2]uint64
	drift       float64
	kp          float64
	ki          float64
	lastFreq    float64
	count       int
}

// NewPiServo returns a servo starting from frequency freq (ppb)
func NewPiServo(cfg Config, pi PiConfig, freq float64) *PiServo {
	s := &PiServo{
		cfg:         cfg,
		pi:          pi,
		firstUpdate: cfg.FirstUpdate,
		lastFreq:    freq,
		drift:       freq,
	}
	s.SyncInterval(1)
	return s
}

// SetLastFreq restarts the integral term from freq
func (s *PiServo) SetLastFreq(freq float64) {
	s.lastFreq = freq
	s.drift = freq
}

// SetMaxFreq limits the frequency range, as supported by the clock
func (s *PiServo) SetMaxFreq(freq float64) {
	s.cfg.MaxFreq = freq
}

// LastFreq returns the last computed frequency
func (s *PiServo) LastFreq() float64 {
	return s.lastFreq
}

// Reset drops collected samples, keeping the frequency estimate
func (s *PiServo) Reset() {
	s.count = 0
	s.firstUpdate = s.cfg.FirstUpdate
}

// Sample takes an offset in ns measured at local time localTs (ns) and
// returns the frequency to apply in ppb
func (s *PiServo) Sample(offset int64, localTs uint64) (float64, State) {
	state := StateInit
	ppb := s.lastFreq
	absOffset := abs(offset)

	switch s.count {
	case 0:
		s.offset[0] = offset
		s.local[0] = localTs
		s.count = 1
	case 1:
		s.offset[1] = offset
		s.local[1] = localTs

		if s.local[0] >= s.local[1] {
			s.count = 0
			break
		}

		localDiff := float64(s.local[1]-s.local[0]) / 1e9
		localDiff += localDiff * freqEstMargin
		freqEstInterval := math.Min(0.016/s.ki, 1000.0)
		if localDiff < freqEstInterval {
			log.Warningf("servo Sample is called too often, not enough time passed since first sample")
			break
		}

		// drift from the frequency offset measured over the two samples
		s.drift += (1e9 - s.drift) * float64(s.offset[1]-s.offset[0]) / float64(s.local[1]-s.local[0])
		s.drift = clamp(s.drift, -s.cfg.MaxFreq, s.cfg.MaxFreq)

		if (s.firstUpdate && s.cfg.FirstStepThreshold > 0 && s.cfg.FirstStepThreshold < absOffset) ||
			(s.cfg.StepThreshold > 0 && s.cfg.StepThreshold < absOffset) {
			state = StateJump
		} else {
			state = StateLocked
		}
		s.firstUpdate = false
		ppb = s.drift
		s.count = 2
	case 2:
		// too far off, start over and estimate drift again
		if s.cfg.StepThreshold > 0 && s.cfg.StepThreshold < absOffset {
			s.count = 0
			break
		}
		state = StateLocked
		kiTerm := s.ki * float64(offset)
		ppb = s.kp*float64(offset) + s.drift + kiTerm
		if ppb < -s.cfg.MaxFreq || ppb > s.cfg.MaxFreq {
			ppb = clamp(ppb, -s.cfg.MaxFreq, s.cfg.MaxFreq)
		} else {
			s.drift += kiTerm
		}
	}
	s.lastFreq = ppb
	return ppb, state
}

// SyncInterval informs the servo about the sync interval in seconds
func (s *PiServo) SyncInterval(interval float64) {
	s.kp = math.Min(s.pi.KpScale*math.Pow(interval, s.pi.KpExponent), s.pi.KpNormMax/interval)
	s.ki = math.Min(s.pi.KiScale*math.Pow(interval, s.pi.KiExponent), s.pi.KiNormMax/interval)
}
