// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config parses service settings from the environment. Sentinel
// settings use the SENTINEL_ prefix; broker settings use the MQTT_ prefix.
// Durations accept ISO-8601 (PT30S) or Go (30s) forms.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
)

type (
	// Settings is the full service configuration.
	Settings struct {
		// Registry.
		RegistryURL      string
		RegisterInterval time.Duration
		ServiceAddress   string

		// Readings backend: "http" (default) or "influxdb".
		ReadingsBackend string
		ReadingsURL     string
		InfluxURL       string
		InfluxToken     string
		InfluxOrg       string
		InfluxBucket    string

		// Forecasting service; empty disables forecast-augmented windows.
		ForecastURL string

		// Analysis cycle.
		AnalysisInterval time.Duration
		Lookback         time.Duration
		AnalysisTimeout  time.Duration
		Workers          uint

		// Inbound API.
		APIPort int

		// Optional thresholds file (YAML).
		ThresholdsFile string

		// Broker connection.
		Broker BrokerSettings
	}

	// BrokerSettings configures the actuation channel connection.
	BrokerSettings struct {
		Hostname  string
		TCPPort   int
		UseTLS    bool
		Username  string
		Password  string
		ClientID  string
		KeepAlive time.Duration
	}
)

// FromEnv parses settings from the process environment.
func FromEnv() (*Settings, error) {
	return fromEnviron(os.Environ())
}

func fromEnviron(environ []string) (*Settings, error) {
	sentinel := settingsMap(environ, "SENTINEL_")
	mqtt := settingsMap(environ, "MQTT_")

	s := &Settings{
		RegisterInterval: 60 * time.Second,
		AnalysisInterval: 30 * time.Second,
		Lookback:         10 * time.Minute,
		AnalysisTimeout:  15 * time.Second,
		Workers:          4,
		APIPort:          8080,
		Broker: BrokerSettings{
			TCPPort:   1883,
			KeepAlive: 60 * time.Second,
		},
	}

	assignIfExists(sentinel, "registryurl", &s.RegistryURL)
	assignIfExists(sentinel, "serviceaddress", &s.ServiceAddress)
	assignIfExists(sentinel, "readingsbackend", &s.ReadingsBackend)
	assignIfExists(sentinel, "readingsurl", &s.ReadingsURL)
	assignIfExists(sentinel, "influxurl", &s.InfluxURL)
	assignIfExists(sentinel, "influxtoken", &s.InfluxToken)
	assignIfExists(sentinel, "influxorg", &s.InfluxOrg)
	assignIfExists(sentinel, "influxbucket", &s.InfluxBucket)
	assignIfExists(sentinel, "forecasturl", &s.ForecastURL)
	assignIfExists(sentinel, "thresholdsfile", &s.ThresholdsFile)

	for name, target := range map[string]*time.Duration{
		"registerinterval": &s.RegisterInterval,
		"analysisinterval": &s.AnalysisInterval,
		"lookback":         &s.Lookback,
		"analysistimeout":  &s.AnalysisTimeout,
	} {
		if err := assignDuration(sentinel, name, target); err != nil {
			return nil, err
		}
	}

	if value, exists := sentinel["workers"]; exists {
		workers, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, invalid("Workers", value, err)
		}
		s.Workers = uint(workers)
	}
	if value, exists := sentinel["apiport"]; exists {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return nil, invalid("ApiPort", value, err)
		}
		s.APIPort = port
	}

	assignIfExists(mqtt, "hostname", &s.Broker.Hostname)
	assignIfExists(mqtt, "username", &s.Broker.Username)
	assignIfExists(mqtt, "password", &s.Broker.Password)
	assignIfExists(mqtt, "clientid", &s.Broker.ClientID)
	s.Broker.UseTLS = mqtt["usetls"] == "true"

	if value, exists := mqtt["tcpport"]; exists {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return nil, invalid("TcpPort", value, err)
		}
		s.Broker.TCPPort = port
	}
	if err := assignDuration(mqtt, "keepalive", &s.Broker.KeepAlive); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks the cross-field requirements a running service needs.
func (s *Settings) Validate() error {
	if s.RegistryURL == "" {
		return &errors.Error{
			Kind:         errors.ConfigurationInvalid,
			Message:      "RegistryUrl must not be empty",
			PropertyName: "RegistryUrl",
		}
	}
	if s.Broker.Hostname == "" {
		return &errors.Error{
			Kind:         errors.ConfigurationInvalid,
			Message:      "HostName must not be empty",
			PropertyName: "HostName",
		}
	}
	return nil
}

// settingsMap lowercases and de-underscores prefixed environment variables,
// so SENTINEL_REGISTRY_URL becomes registryurl.
func settingsMap(environ []string, prefix string) map[string]string {
	settings := make(map[string]string)
	for _, env := range environ {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) != 2 || !strings.HasPrefix(kv[0], prefix) {
			continue
		}
		k := strings.ToLower(
			strings.ReplaceAll(strings.TrimPrefix(kv[0], prefix), "_", ""),
		)
		settings[k] = strings.TrimSpace(kv[1])
	}
	return settings
}

func assignIfExists(settings map[string]string, key string, target *string) {
	if value, exists := settings[key]; exists {
		*target = value
	}
}

func assignDuration(
	settings map[string]string,
	key string,
	target *time.Duration,
) error {
	value, exists := settings[key]
	if !exists {
		return nil
	}

	if parsed, err := duration.Parse(value); err == nil {
		*target = parsed.ToTimeDuration()
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return invalid(key, value, err)
	}
	*target = parsed
	return nil
}

func invalid(name, value string, err error) error {
	return &errors.Error{
		Kind:          errors.ConfigurationInvalid,
		Message:       "invalid " + name,
		PropertyName:  name,
		PropertyValue: value,
		NestedError:   err,
	}
}
