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

// Package bmc implements the dataset comparison of the Best Master Clock Algorithm
package bmc

import (
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"golang.org/x/exp/constraints"
)

// ComparisonResult is the type to represent comparisons
type ComparisonResult int8

const (
	// ABetterTopo means A is better based on topology
	ABetterTopo ComparisonResult = 2
	// ABetter means A is better based on clock attributes
	ABetter ComparisonResult = 1
	// Unknown means both describe the same path to the same clock
	Unknown ComparisonResult = 0
	// BBetter means B is better based on clock attributes
	BBetter ComparisonResult = -1
	// BBetterTopo means B is better based on topology
	BBetterTopo ComparisonResult = -2
)

// ABetter reports whether A won, by attributes or topology
func (r ComparisonResult) ABetter() bool {
	return r > 0
}

// Dataset holds the attributes compared by the BMCA for one candidate
type Dataset struct {
	Priority1    uint8
	Identity     ptp.ClockIdentity
	Quality      ptp.ClockQuality
	Priority2    uint8
	StepsRemoved uint16
	// port that sent the Announce, the local port for D0
	Sender ptp.PortIdentity
	// port that received the Announce, the local port for D0
	Receiver ptp.PortIdentity
}

// FromAnnounce builds a Dataset from an Announce received on port receiver
func FromAnnounce(a *ptp.Announce, receiver ptp.PortIdentity) Dataset {
	return Dataset{
		Priority1:    a.GrandmasterPriority1,
		Identity:     a.GrandmasterIdentity,
		Quality:      a.GrandmasterClockQuality,
		Priority2:    a.GrandmasterPriority2,
		StepsRemoved: a.StepsRemoved,
		Sender:       a.SourcePortIdentity,
		Receiver:     receiver,
	}
}

func compareIdentity(a, b ptp.ClockIdentity) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Dscmp2 compares two datasets describing the same grandmaster by topology
func Dscmp2(a, b *Dataset) ComparisonResult {
	if a.StepsRemoved+1 < b.StepsRemoved {
		return ABetter
	}
	if b.StepsRemoved+1 < a.StepsRemoved {
		return BBetter
	}
	if a.StepsRemoved < b.StepsRemoved {
		return ABetterTopo
	}
	if b.StepsRemoved < a.StepsRemoved {
		return BBetterTopo
	}
	switch a.Sender.Compare(b.Sender) {
	case -1:
		return ABetterTopo
	case 1:
		return BBetterTopo
	}
	switch {
	case a.Receiver.PortNumber < b.Receiver.PortNumber:
		return ABetterTopo
	case a.Receiver.PortNumber > b.Receiver.PortNumber:
		return BBetterTopo
	}
	return Unknown
}

// Dscmp compares two datasets, lower values win at every step
func Dscmp(a, b *Dataset) ComparisonResult {
	if a.Identity == b.Identity {
		return Dscmp2(a, b)
	}
	if a.Priority1 != b.Priority1 {
		return lower(a.Priority1, b.Priority1)
	}
	if a.Quality.ClockClass != b.Quality.ClockClass {
		return lower(a.Quality.ClockClass, b.Quality.ClockClass)
	}
	if a.Quality.ClockAccuracy != b.Quality.ClockAccuracy {
		return lower(a.Quality.ClockAccuracy, b.Quality.ClockAccuracy)
	}
	if a.Quality.OffsetScaledLogVariance != b.Quality.OffsetScaledLogVariance {
		return lower(a.Quality.OffsetScaledLogVariance, b.Quality.OffsetScaledLogVariance)
	}
	if a.Priority2 != b.Priority2 {
		return lower(a.Priority2, b.Priority2)
	}
	if compareIdentity(a.Identity, b.Identity) < 0 {
		return ABetter
	}
	return BBetter
}

// DscmpAnnounce compares two Announce messages received on the same port
func DscmpAnnounce(a, b *ptp.Announce) ComparisonResult {
	if a.AnnounceBody == b.AnnounceBody && a.SourcePortIdentity == b.SourcePortIdentity {
		return Unknown
	}
	da := FromAnnounce(a, ptp.PortIdentity{})
	db := FromAnnounce(b, ptp.PortIdentity{})
	return Dscmp(&da, &db)
}

func lower[T constraints.Unsigned](a, b T) ComparisonResult {
	if a < b {
		return ABetter
	}
	return BBetter
}
