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
	"fmt"
	"strings"

	ptp "github.com/facebook/wrptp/ptp/protocol"
)

// State is a port state of the PTP state machine
type State uint8

// Port states. ABSCAL is a calibration-only state outside IEEE 1588.
const (
	StateInitializing State = iota + 1
	StateFaulty
	StateDisabled
	StateListening
	StatePreMaster
	StateMaster
	StatePassive
	StateUncalibrated
	StateSlave
	StateAbscal
)

var stateToString = map[State]string{
	StateInitializing: "INITIALIZING",
	StateFaulty:       "FAULTY",
	StateDisabled:     "DISABLED",
	StateListening:    "LISTENING",
	StatePreMaster:    "PRE_MASTER",
	StateMaster:       "MASTER",
	StatePassive:      "PASSIVE",
	StateUncalibrated: "UNCALIBRATED",
	StateSlave:        "SLAVE",
	StateAbscal:       "ABSCAL",
}

func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// PortState maps the state to the IEEE 1588 enumeration
func (s State) PortState() ptp.PortState {
	if s == StateAbscal {
		return ptp.PortStateDisabled
	}
	return ptp.PortState(s)
}

func (s State) valid() bool {
	return s >= StateInitializing && s <= StateAbscal
}

// master reports whether the state is PRE_MASTER or MASTER
func (s State) master() bool {
	return s == StatePreMaster || s == StateMaster
}

// slave reports whether the state is UNCALIBRATED or SLAVE
func (s State) slave() bool {
	return s == StateUncalibrated || s == StateSlave
}

// Role is the configured role of an instance
type Role uint8

// Roles. RoleAuto leaves the decision to the BMCA.
const (
	RoleAuto Role = iota
	RoleMaster
	RoleSlave
)

var roleToString = map[Role]string{
	RoleAuto:   "auto",
	RoleMaster: "master",
	RoleSlave:  "slave",
}

func (r Role) String() string {
	return roleToString[r]
}

// ParseRole parses a role name
func ParseRole(s string) (Role, error) {
	for r, name := range roleToString {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return RoleAuto, fmt.Errorf("unknown role %q", s)
}

// UnmarshalYAML reads a role from its name
func (r *Role) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalYAML writes a role as its name
func (r Role) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}
