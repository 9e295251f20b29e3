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

// Package servo turns offset measurements into clock frequency corrections
package servo

import (
	"golang.org/x/exp/constraints"
)

// State is the result of a servo sample
type State uint8

// All the states of servo
const (
	// StateInit means the servo is still collecting samples, keep the frequency
	StateInit State = iota
	// StateJump means the offset is too big and the clock should be stepped
	StateJump
	// StateLocked means the returned frequency should be applied
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	}
	return "UNSUPPORTED"
}

// Config has values common for any type of servo
type Config struct {
	// MaxFreq is the frequency adjustment limit in ppb
	MaxFreq float64 `yaml:"max_freq"`
	// StepThreshold makes the servo step the clock when the offset is above it, in ns. 0 disables.
	StepThreshold int64 `yaml:"step_threshold"`
	// FirstStepThreshold applies to the first measurement only, in ns. 0 disables.
	FirstStepThreshold int64 `yaml:"first_step_threshold"`
	// FirstUpdate allows stepping on the first measurement
	FirstUpdate bool `yaml:"first_update"`
}

// DefaultConfig returns the servo defaults
func DefaultConfig() Config {
	return Config{
		MaxFreq:            900000000,
		FirstStepThreshold: 20000,
		FirstUpdate:        true,
	}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}
