// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package actuator

import "strings"

// Valve topics follow actuator/valve/{sectorId}/{deviceId}, with /status
// appended for echoes from the valves.
const (
	topicPrefix = "actuator/valve"
	statusLevel = "status"
)

// CommandTopic builds the command topic for a sector valve.
func CommandTopic(sectorID, deviceID string) string {
	return topicPrefix + "/" + sectorID + "/" + deviceID
}

// StatusFilter is the subscription filter matching all valve status echoes.
func StatusFilter() string {
	return topicPrefix + "/+/+/" + statusLevel
}

// ParseStatusTopic extracts the sector and device from a status topic name.
func ParseStatusTopic(topic string) (sectorID, deviceID string, ok bool) {
	levels := strings.Split(topic, "/")
	if len(levels) != 5 || levels[0]+"/"+levels[1] != topicPrefix ||
		levels[4] != statusLevel {
		return "", "", false
	}
	if levels[2] == "" || levels[3] == "" {
		return "", "", false
	}
	return levels[2], levels[3], true
}

// IsTopicFilterMatch checks if a topic name matches a topic filter.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	for i, filter := range filters {
		if filter == "#" {
			// Multi-level wildcard must be at the end.
			return i == len(filters)-1
		}
		if filter == "+" {
			// Single-level wildcard matches any single level.
			continue
		}
		if i >= len(names) || filter != names[i] {
			return false
		}
	}

	// Exact match is required if there are no wildcards left.
	return len(filters) == len(names)
}
