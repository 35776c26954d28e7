// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mitigation

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/anomaly"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Thresholds are the static bounds evaluated by the mitigation policy,
	// one pair per analyzed metric.
	Thresholds struct {
		Temperature anomaly.Thresholds `json:"temperature" yaml:"temperature"`
		Pressure    anomaly.Thresholds `json:"pressure" yaml:"pressure"`
	}

	// ThresholdStore holds the current thresholds. Reads are concurrent;
	// updates (from configuration or the inbound API) replace the whole set.
	ThresholdStore struct {
		mu sync.RWMutex
		th Thresholds
	}
)

// DefaultThresholds are used until configuration or the API provides others.
var DefaultThresholds = Thresholds{
	Temperature: anomaly.Thresholds{High: 85, Low: 0},
	Pressure:    anomaly.Thresholds{High: 8.5, Low: 0},
}

// NewThresholdStore creates a store with the given initial thresholds.
func NewThresholdStore(th Thresholds) *ThresholdStore {
	return &ThresholdStore{th: th}
}

// Get returns the current thresholds.
func (s *ThresholdStore) Get() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.th
}

// Set replaces the current thresholds.
func (s *ThresholdStore) Set(th Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.th = th
}

// For returns the threshold pair for the given metric.
func (t Thresholds) For(metric pipeline.Metric) anomaly.Thresholds {
	if metric == pipeline.Pressure {
		return t.Pressure
	}
	return t.Temperature
}

// LoadThresholds reads a threshold set from a YAML file.
func LoadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, &errors.Error{
			Kind:          errors.ConfigurationInvalid,
			Message:       "threshold file unreadable",
			PropertyName:  "ThresholdFile",
			PropertyValue: path,
			NestedError:   err,
		}
	}

	th := DefaultThresholds
	if err := yaml.Unmarshal(data, &th); err != nil {
		return Thresholds{}, &errors.Error{
			Kind:          errors.ConfigurationInvalid,
			Message:       "threshold file invalid",
			PropertyName:  "ThresholdFile",
			PropertyValue: path,
			NestedError:   err,
		}
	}
	return th, nil
}
