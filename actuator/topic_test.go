// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package actuator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/actuator"
)

func TestCommandTopic(t *testing.T) {
	require.Equal(
		t,
		"actuator/valve/sector001/dev010",
		actuator.CommandTopic("sector001", "dev010"),
	)
}

func TestParseStatusTopic(t *testing.T) {
	tests := []struct {
		topic          string
		sector, device string
		ok             bool
	}{
		{"actuator/valve/sector001/dev010/status", "sector001", "dev010", true},
		{"actuator/valve/sector002/dev030/status", "sector002", "dev030", true},
		{"actuator/valve/sector001/dev010", "", "", false},
		{"actuator/valve/sector001/dev010/state", "", "", false},
		{"actuator/valve//dev010/status", "", "", false},
		{"actuator/valve/sector001//status", "", "", false},
		{"sensors/valve/sector001/dev010/status", "", "", false},
		{"actuator/valve/sector001/dev010/status/extra", "", "", false},
	}
	for _, test := range tests {
		sector, device, ok := actuator.ParseStatusTopic(test.topic)
		require.Equal(t, test.ok, ok, "Topic: %s", test.topic)
		require.Equal(t, test.sector, sector, "Topic: %s", test.topic)
		require.Equal(t, test.device, device, "Topic: %s", test.topic)
	}
}

func TestStatusFilterMatchesStatusTopics(t *testing.T) {
	tests := []struct {
		topic    string
		expected bool
	}{
		{"actuator/valve/sector001/dev010/status", true},
		{"actuator/valve/sector002/dev020/status", true},
		{"actuator/valve/sector001/dev010", false},
		{"actuator/valve/sector001/status", false},
		{"sensors/sector001/dev010/temperature", false},
	}
	for _, test := range tests {
		require.Equal(
			t,
			test.expected,
			actuator.IsTopicFilterMatch(actuator.StatusFilter(), test.topic),
			"Topic name: %s",
			test.topic,
		)
	}
}

func TestTopicFilterMatch(t *testing.T) {
	tests := []struct {
		filter   string
		topic    string
		expected bool
	}{
		{"actuator/valve/+/+", "actuator/valve/sector001/dev010", true},
		{"actuator/valve/+/+", "actuator/valve/sector001/dev010/status", false},
		{"actuator/#", "actuator/valve/sector001/dev010/status", true},
		{"actuator/#", "actuator", true},
		{"actuator/valve/sector001/dev010", "actuator/valve/sector001/dev010", true},
		{"actuator/valve/sector001/dev010", "actuator/valve/sector001/dev020", false},
		{"actuator/#/status", "actuator/valve/status", false}, // Invalid filter
	}
	for _, test := range tests {
		require.Equal(
			t,
			test.expected,
			actuator.IsTopicFilterMatch(test.filter, test.topic),
			"Topic filter: %s, Topic name: %s",
			test.filter,
			test.topic,
		)
	}
}
