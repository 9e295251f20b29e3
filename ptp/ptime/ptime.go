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
Package ptime implements the signed fixed-point time value used by the
PTP engine. A Time is a count of whole seconds plus a fraction kept in
"scaled nanoseconds": nanoseconds shifted left by 16 bits, the same unit
as the PTP correctionField. No floating point is involved.
*/
package ptime

import (
	"fmt"
	"time"
)

// FracBits is the number of fractional bits below one nanosecond
const FracBits = 16

// Scaled units
const (
	Nanosecond int64 = 1 << FracBits
	OneSecond  int64 = 1_000_000_000 << FracBits
	halfSecond int64 = OneSecond / 2
)

const (
	nsPerSecond = int64(time.Second)
	psPerSecond = int64(1_000_000_000_000)
)

// Time is a signed instant or interval. After normalization 0 <= Scaled < OneSecond,
// so negative values carry a negative Secs and a positive fraction.
// Incorrect marks values derived from invalid timestamps; every operation propagates it.
type Time struct {
	Secs      int64
	Scaled    int64
	Incorrect bool
}

// New returns a normalized Time from seconds and nanoseconds
func New(secs, ns int64) Time {
	return Normalize(Time{Secs: secs, Scaled: ns << FracBits})
}

// FromNanoseconds converts a nanosecond count
func FromNanoseconds(ns int64) Time {
	return Normalize(Time{Secs: ns / nsPerSecond, Scaled: (ns % nsPerSecond) << FracBits})
}

// FromDuration converts a time.Duration
func FromDuration(d time.Duration) Time {
	return FromNanoseconds(int64(d))
}

// FromPicoseconds converts a picosecond count, truncating below the scaled resolution
func FromPicoseconds(ps int64) Time {
	rem := ps % psPerSecond
	return Normalize(Time{Secs: ps / psPerSecond, Scaled: (rem << FracBits) / 1000})
}

// FromScaled converts a scaled-nanosecond count such as a correctionField
func FromScaled(scaled int64) Time {
	return Normalize(Time{Scaled: scaled})
}

// Normalize moves whole seconds out of Scaled so that 0 <= Scaled < OneSecond.
// The represented instant and the Incorrect marker are unchanged.
func Normalize(t Time) Time {
	if t.Scaled >= OneSecond || t.Scaled <= -OneSecond {
		t.Secs += t.Scaled / OneSecond
		t.Scaled %= OneSecond
	}
	if t.Scaled < 0 {
		t.Secs--
		t.Scaled += OneSecond
	}
	return t
}

// Add returns a+b
func Add(a, b Time) Time {
	return Normalize(Time{
		Secs:      a.Secs + b.Secs,
		Scaled:    a.Scaled + b.Scaled,
		Incorrect: a.Incorrect || b.Incorrect,
	})
}

// Sub returns a-b
func Sub(a, b Time) Time {
	return Normalize(Time{
		Secs:      a.Secs - b.Secs,
		Scaled:    a.Scaled - b.Scaled,
		Incorrect: a.Incorrect || b.Incorrect,
	})
}

// Neg returns -t
func Neg(t Time) Time {
	return Normalize(Time{Secs: -t.Secs, Scaled: -t.Scaled, Incorrect: t.Incorrect})
}

// Div2 halves t. When the seconds field is odd, the leftover half second is
// applied with the sign of the halved seconds field. For values in [-1, 0)
// the halved seconds field is zero and the half second is added, so the
// result is off by one half second there.
func Div2(t Time) Time {
	odd := t.Secs&1 != 0
	t.Secs /= 2
	t.Scaled /= 2
	if odd {
		if t.Secs < 0 {
			t.Scaled -= halfSecond
		} else {
			t.Scaled += halfSecond
		}
	}
	return Normalize(t)
}

// IsZero reports whether t is exactly zero
func (t Time) IsZero() bool {
	return t.Secs == 0 && t.Scaled == 0
}

// Sign returns -1, 0 or 1
func (t Time) Sign() int {
	t = Normalize(t)
	switch {
	case t.Secs < 0:
		return -1
	case t.Secs == 0 && t.Scaled == 0:
		return 0
	}
	return 1
}

// Nanoseconds returns t as a nanosecond count, flooring the fraction
func (t Time) Nanoseconds() int64 {
	t = Normalize(t)
	return t.Secs*nsPerSecond + t.Scaled>>FracBits
}

// Picoseconds returns t as a picosecond count, flooring the fraction
func (t Time) Picoseconds() int64 {
	t = Normalize(t)
	return t.Secs*psPerSecond + (t.Scaled*1000)>>FracBits
}

// Duration returns t as a time.Duration
func (t Time) Duration() time.Duration {
	return time.Duration(t.Nanoseconds())
}

// Less reports whether a is before b
func Less(a, b Time) bool {
	a, b = Normalize(a), Normalize(b)
	if a.Secs != b.Secs {
		return a.Secs < b.Secs
	}
	return a.Scaled < b.Scaled
}

// String formats t as signed seconds with nanosecond precision
func (t Time) String() string {
	t = Normalize(t)
	sign := ""
	if t.Secs < 0 {
		sign = "-"
		t = Neg(t)
	}
	s := fmt.Sprintf("%s%d.%09d", sign, t.Secs, t.Scaled>>FracBits)
	if t.Incorrect {
		s += "!"
	}
	return s
}
