// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Topology enumerates the sector and device layout from the device
	// catalog service, located through the registry.
	Topology struct {
		Registry *Client

		// ServiceType locates the catalog. Defaults to "device_catalog".
		ServiceType string

		// HTTP overrides the catalog HTTP client.
		HTTP *http.Client
	}

	wireSector struct {
		ID      string       `json:"id"`
		Name    string       `json:"name"`
		Devices []wireDevice `json:"devices"`
	}

	wireDevice struct {
		ID string `json:"id"`

		// Position is optional; legacy catalogs encode it in the device ID.
		Position *int `json:"position,omitempty"`
	}
)

var defaultTopologyHTTP = &http.Client{Timeout: 10 * time.Second}

// Sectors fetches the current sector topology.
func (t *Topology) Sectors(ctx context.Context) ([]*pipeline.Sector, error) {
	serviceType := t.ServiceType
	if serviceType == "" {
		serviceType = "device_catalog"
	}
	endpoint, err := t.Registry.Discover(ctx, serviceType)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		endpoint.Address+"/sectors",
		nil,
	)
	if err != nil {
		return nil, &errors.Error{
			Kind:        errors.InternalError,
			Message:     "topology request invalid",
			Service:     serviceType,
			NestedError: err,
		}
	}

	httpClient := t.HTTP
	if httpClient == nil {
		httpClient = defaultTopologyHTTP
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, discoveryUnavailable(serviceType, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, discoveryUnavailable(serviceType, fmt.Errorf(
			"catalog returned status %d", res.StatusCode,
		))
	}

	var wire []wireSector
	if err := json.NewDecoder(res.Body).Decode(&wire); err != nil {
		return nil, discoveryUnavailable(serviceType, err)
	}

	sectors := make([]*pipeline.Sector, 0, len(wire))
	for _, ws := range wire {
		sector := &pipeline.Sector{
			ID:      ws.ID,
			Name:    ws.Name,
			Devices: make([]pipeline.Device, 0, len(ws.Devices)),
		}
		for _, wd := range ws.Devices {
			position := 0
			if wd.Position != nil {
				position = *wd.Position
			} else {
				position, err = pipeline.ParsePosition(wd.ID)
				if err != nil {
					return nil, err
				}
			}
			sector.Devices = append(sector.Devices, pipeline.Device{
				ID:       wd.ID,
				SectorID: ws.ID,
				Position: position,
			})
		}
		sectors = append(sectors, sector)
	}
	return sectors, nil
}
