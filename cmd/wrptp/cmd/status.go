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

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/stats"
)

var statusAddressFlag string

func init() {
	RootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusAddressFlag, "address", "a", "http://localhost:4270", "address of the wrptp monitoring endpoint")
}

func stateString(s string) string {
	switch s {
	case fsm.StateSlave.String(), fsm.StateMaster.String():
		return color.GreenString(s)
	case fsm.StateFaulty.String(), fsm.StateDisabled.String():
		return color.RedString(s)
	}
	return color.YellowString(s)
}

func boolString(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func printStatus(w io.Writer, st *fsm.Status) {
	clockState := color.YellowString(st.ClockState)
	if st.ClockState == fsm.ClockLocked.String() {
		clockState = color.GreenString(st.ClockState)
	}
	fmt.Fprintf(w, "clock:       %s (%s)\n", st.ClockIdentity, clockState)
	if st.IsGrandmaster {
		fmt.Fprintf(w, "grandmaster: %s\n", color.BlueString("local"))
	} else {
		fmt.Fprintf(w, "grandmaster: %s via %s, %d steps\n", st.GrandmasterIdentity, st.ParentPortIdentity, st.StepsRemoved)
		fmt.Fprintf(w, "offset:      %dns, mean path delay %dns\n", st.OffsetFromMasterNs, st.MeanPathDelayNs)
	}
	if st.UTCOffsetValid {
		fmt.Fprintf(w, "utc offset:  %ds\n", st.UTCOffset)
	}

	table := tablewriter.NewWriter(w)
	table.SetColWidth(20)
	table.SetHeader([]string{
		"name", "iface", "state", "link", "extension", "ext state", "link on", "failures", "offset(ns)", "delay(ns)", "freq(ppb)",
	})
	for _, inst := range st.Instances {
		ext := inst.Extension.Name
		if !inst.ExtensionEnabled && ext != fsm.ExtensionNone {
			ext += " (off)"
		}
		table.Append([]string{
			inst.Name,
			inst.Iface,
			stateString(inst.State),
			boolString(inst.LinkUp),
			ext,
			inst.Extension.State,
			boolString(inst.Extension.LinkOn),
			fmt.Sprintf("%d", inst.Extension.Failures),
			fmt.Sprintf("%d", inst.OffsetNs),
			fmt.Sprintf("%d", inst.MeanPathDelayNs),
			fmt.Sprintf("%.3f", inst.FreqPPB),
		})
	}
	table.Render()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of a running wrptp",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		st, err := stats.FetchStatus(statusAddressFlag)
		if err != nil {
			log.Fatalf("fetching status: %v", err)
		}
		printStatus(os.Stdout, st)
	},
}
