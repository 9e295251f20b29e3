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
	"context"
	"net/http"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/facebook/wrptp/ptp/driver"
	"github.com/facebook/wrptp/stats"

	_ "net/http/pprof"
)

var (
	runConfigFlag         string
	runIfacesFlag         []string
	runMonitoringPortFlag int
	runPprofFlag          string
)

func init() {
	RootCmd.AddCommand(runCmd)
	defaults := driver.DefaultConfig()
	runCmd.Flags().StringVarP(&runConfigFlag, "config", "c", "", "path to the config")
	runCmd.Flags().StringSliceVarP(&runIfacesFlag, "iface", "i", nil, "interfaces to run White Rabbit instances on, replaces the configured instances")
	runCmd.Flags().IntVar(&runMonitoringPortFlag, "monitoringport", defaults.MonitoringPort, "port to start monitoring http server on, 0 disables it")
	runCmd.Flags().StringVar(&runPprofFlag, "pprof", "", "Address to have the profiler listen on, disabled if empty.")
}

func runDaemon(cfg *driver.Config) error {
	st := stats.NewServer()
	d, err := driver.New(cfg, st)
	if err != nil {
		return err
	}
	defer d.Close()
	if cfg.MonitoringPort != 0 {
		go func() {
			if err := st.Start(cfg.MonitoringPort, cfg.StatsInterval); err != nil {
				log.Fatalf("Failed to start listener: %v", err)
			}
		}()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the PTP daemon",
	Run: func(c *cobra.Command, _ []string) {
		ConfigureVerbosity()
		setFlags := map[string]bool{}
		if c.Flags().Changed("monitoringport") {
			setFlags["monitoringport"] = true
		}
		cfg, err := driver.PrepareConfig(runConfigFlag, runIfacesFlag, runMonitoringPortFlag, setFlags)
		if err != nil {
			log.Fatal(err)
		}
		if runPprofFlag != "" {
			go func() {
				if err := http.ListenAndServe(runPprofFlag, nil); err != nil {
					log.Errorf("Failed to start pprof. Err: %v", err)
				}
			}()
		}
		if err := runDaemon(cfg); err != nil {
			log.Fatal(err)
		}
	},
}
