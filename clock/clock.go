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

package clock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// PPBToTimexPPM converts PPB to the timex freq unit, ppm with a 16-bit fractional part
const PPBToTimexPPM = 65.536

// DefaultMaxFreqPPB is used when the clock reports no tolerance
const DefaultMaxFreqPPB = 500000.0

// Realtime is the system clock id
const Realtime int32 = unix.CLOCK_REALTIME

// clock_adjtime modes from include/uapi/linux/timex.h
const (
	AdjOffset    uint32 = 0x0001
	AdjFrequency uint32 = 0x0002
	AdjMaxError  uint32 = 0x0004
	AdjEstError  uint32 = 0x0008
	AdjStatus    uint32 = 0x0010
	AdjTAI       uint32 = 0x0080
	AdjSetOffset uint32 = 0x0100
	AdjNano      uint32 = 0x2000
)

// timex status bits
const (
	StaIns    int32 = 0x0010
	StaDel    int32 = 0x0020
	StaUnsync int32 = 0x0040
)

// Adjtime calls clock_adjtime and returns the clock state
func Adjtime(clockid int32, tx *unix.Timex) (int, error) {
	state, err := unix.ClockAdjtime(clockid, tx)
	if err != nil {
		return state, fmt.Errorf("clock_adjtime(%d): %w", clockid, err)
	}
	return state, nil
}

// FrequencyPPB reads the clock frequency in PPB
func FrequencyPPB(clockid int32) (float64, int, error) {
	tx := &unix.Timex{}
	state, err := Adjtime(clockid, tx)
	return float64(tx.Freq) / PPBToTimexPPM, state, err
}

// AdjFreqPPB sets the clock frequency in PPB
func AdjFreqPPB(clockid int32, freqPPB float64) (int, error) {
	tx := &unix.Timex{Modes: AdjFrequency}
	setFreq(tx, freqPPB)
	return Adjtime(clockid, tx)
}

// Step shifts the clock by step
func Step(clockid int32, step time.Duration) (int, error) {
	tx := &unix.Timex{Modes: AdjSetOffset | AdjNano}
	sec := step / time.Second
	nsec := step % time.Second
	// the nanosecond field must not be negative
	if nsec < 0 {
		sec--
		nsec += time.Second
	}
	setTime(tx, int64(sec), int64(nsec))
	return Adjtime(clockid, tx)
}

// MaxFreqPPB returns the maximum frequency adjustment of the clock
func MaxFreqPPB(clockid int32) (float64, int, error) {
	tx := &unix.Timex{}
	state, err := Adjtime(clockid, tx)
	if err != nil {
		return 0, state, err
	}
	freqPPB := float64(tx.Tolerance) / PPBToTimexPPM
	if freqPPB == 0 {
		freqPPB = DefaultMaxFreqPPB
	}
	return freqPPB, state, nil
}

// SetSync marks the clock synchronized, resetting the maximum error
func SetSync(clockid int32) error {
	tx := &unix.Timex{Modes: AdjStatus | AdjMaxError}
	state, err := Adjtime(clockid, tx)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("clock state %d is not TIME_OK after setting sync state", state)
	}
	return err
}

// TAI describes the kernel's view of the UTC offset
type TAI struct {
	Offset int
	Leap59 bool
	Leap61 bool
	Unsync bool
}

// ReadTAI returns the TAI offset and pending leap second of the clock
func ReadTAI(clockid int32) (TAI, error) {
	tx := &unix.Timex{}
	if _, err := Adjtime(clockid, tx); err != nil {
		return TAI{}, err
	}
	return TAI{
		Offset: int(tx.Tai),
		Leap59: tx.Status&StaDel != 0,
		Leap61: tx.Status&StaIns != 0,
		Unsync: tx.Status&StaUnsync != 0,
	}, nil
}

// Time reads the clock
func Time(clockid int32) (sec, nsec int64, err error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockid, &ts); err != nil {
		return 0, 0, fmt.Errorf("clock_gettime(%d): %w", clockid, err)
	}
	return int64(ts.Sec), int64(ts.Nsec), nil
}

// SetTime sets the clock
func SetTime(clockid int32, sec, nsec int64) error {
	ts := unix.NsecToTimespec(sec*int64(time.Second) + nsec)
	if err := unix.ClockSettime(clockid, &ts); err != nil {
		return fmt.Errorf("clock_settime(%d): %w", clockid, err)
	}
	return nil
}
