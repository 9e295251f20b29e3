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

package stats

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type promGauges struct {
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
}

func newPromGauges() *promGauges {
	return &promGauges{registry: prometheus.NewRegistry(), gauges: map[string]prometheus.Gauge{}}
}

// update sets a gauge per counter. Gauges of counters that disappeared drop to zero.
func (p *promGauges) update(c Counters) {
	for key, g := range p.gauges {
		if _, ok := c[key]; !ok {
			g.Set(0)
		}
	}
	for key, val := range c {
		g, ok := p.gauges[key]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{
				Name: flattenKey(key),
				Help: key,
			})
			if err := p.registry.Register(g); err != nil {
				are := &prometheus.AlreadyRegisteredError{}
				if !errors.As(err, are) {
					log.Errorf("failed to register metric %s %v", key, err)
					continue
				}
				g = are.ExistingCollector.(prometheus.Gauge)
			}
			p.gauges[key] = g
		}
		g.Set(float64(val))
	}
}

func flattenKey(key string) string {
	return strings.NewReplacer(" ", "_", ".", "_", "-", "_", "=", "_", "/", "_").Replace(key)
}
