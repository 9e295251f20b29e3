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
	"testing"

	"github.com/stretchr/testify/require"
)

/*
pi servo: sample 0, offset 1191, local_ts 1674148530671467104, last_freq -111288.406372
pi servo: sample 1, offset 225, local_ts 1674148531671518924, last_freq -111288.406372
pi servo: sample 2, offset 1170, local_ts 1674148532671555647, last_freq -112254.463816
pi servo: sample 2, offset 919, local_ts 1674148533671484215, last_freq -111084.463816
*/

func noStepConfig() Config {
	cfg := DefaultConfig()
	cfg.FirstUpdate = false
	return cfg
}

func TestPiServoSample(t *testing.T) {
	pi := NewPiServo(noStepConfig(), DefaultPiConfig(), -111288.406372)
	require.InEpsilon(t, -111288.406372, pi.LastFreq(), 0.00001)
	require.InEpsilon(t, -111288.406372, pi.drift, 0.00001)

	freq, state := pi.Sample(1191, 1674148530671467104)
	require.InEpsilon(t, -111288.406372, freq, 0.00001)
	require.Equal(t, StateInit, state)

	freq, state = pi.Sample(225, 1674148531671518924)
	require.InEpsilon(t, -112254.463816, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq, state = pi.Sample(1170, 1674148532671555647)
	require.InEpsilon(t, -111084.463816, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq, state = pi.Sample(919, 1674148533671484215)
	require.InEpsilon(t, -110984.463816, freq, 0.00001)
	require.Equal(t, StateLocked, state)
	require.InEpsilon(t, -110984.463816, pi.LastFreq(), 0.00001)
}

func TestPiServoStepSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstStepThreshold = 200000
	pi := NewPiServo(cfg, DefaultPiConfig(), -111288.406372)

	freq, state := pi.Sample(235000, 1674148528671467104)
	require.InEpsilon(t, -111288.406372, freq, 0.00001)
	require.Equal(t, StateInit, state)

	freq, state = pi.Sample(225000, 1674148529671518924)
	require.InEpsilon(t, -121289.001025, freq, 0.00001)
	require.Equal(t, StateJump, state)

	freq, state = pi.Sample(1191, 1674148530671467104)
	require.InEpsilon(t, -120098.001025, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq, state = pi.Sample(225, 1674148531671518924)
	require.InEpsilon(t, -120706.701025, freq, 0.00001)
	require.Equal(t, StateLocked, state)
}

func TestPiServoStepThresholdResets(t *testing.T) {
	cfg := noStepConfig()
	cfg.StepThreshold = 100000
	pi := NewPiServo(cfg, DefaultPiConfig(), 0)
	_, state := pi.Sample(10, 1_000_000_000)
	require.Equal(t, StateInit, state)
	_, state = pi.Sample(20, 2_000_000_000)
	require.Equal(t, StateLocked, state)
	_, state = pi.Sample(500000, 3_000_000_000)
	require.Equal(t, StateInit, state)
	require.Equal(t, 0, pi.count)
}

func TestPiServoTooOften(t *testing.T) {
	pi := NewPiServo(noStepConfig(), DefaultPiConfig(), 100)
	pi.Sample(10, 1_000_000_000)
	freq, state := pi.Sample(20, 1_000_001_000)
	require.Equal(t, StateInit, state)
	require.InEpsilon(t, 100.0, freq, 0.00001)
}

func TestPiServoClamp(t *testing.T) {
	cfg := noStepConfig()
	cfg.MaxFreq = 1000
	pi := NewPiServo(cfg, DefaultPiConfig(), 0)
	pi.Sample(0, 1_000_000_000)
	pi.Sample(0, 2_000_000_000)
	freq, state := pi.Sample(1_000_000, 3_000_000_000)
	require.Equal(t, StateLocked, state)
	require.InEpsilon(t, 1000.0, freq, 0.00001)
	freq, _ = pi.Sample(-1_000_000, 4_000_000_000)
	require.InEpsilon(t, -1000.0, freq, 0.00001)
}

func TestPiServoSetLastFreq(t *testing.T) {
	pi := NewPiServo(DefaultConfig(), DefaultPiConfig(), -111288.406372)
	pi.SetLastFreq(11111.0025)
	require.InEpsilon(t, 11111.0025, pi.LastFreq(), 0.00001)
	require.InEpsilon(t, 11111.0025, pi.drift, 0.00001)
}

func TestSyncInterval(t *testing.T) {
	pi := NewPiServo(DefaultConfig(), DefaultPiConfig(), 0)
	require.InEpsilon(t, 0.7, pi.kp, 0.00001)
	require.InEpsilon(t, 0.3, pi.ki, 0.00001)
	pi.SyncInterval(4)
	// capped by KpNormMax / interval
	require.InEpsilon(t, 0.25, pi.kp, 0.00001)
	require.InEpsilon(t, 0.3, pi.ki, 0.00001)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "JUMP", StateJump.String())
	require.Equal(t, "UNSUPPORTED", State(9).String())
}
