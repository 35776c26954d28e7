// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package api

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type (
	// CascadeAnalysisRequest asks for a cascade analysis over one sector and
	// metric. DataType selects the metric; "forecast" variants are served by
	// the forecast-decorated window source when one is configured.
	CascadeAnalysisRequest struct {
		SectorID string `json:"sector_id" binding:"required,resource_id"`
		DataType string `json:"data_type" binding:"required,oneof=temperature pressure"`
	}

	// AnomalyRequest reports an externally detected anomaly for one device.
	// Observed carries the latest values per metric as seen by the reporter.
	AnomalyRequest struct {
		SectorID string             `json:"sector_id" binding:"required,resource_id"`
		DeviceID string             `json:"device_id" binding:"required,resource_id"`
		Type     string             `json:"type" binding:"required,oneof=temperature pressure"`
		Severity string             `json:"severity" binding:"required,oneof=high medium low"`
		Observed map[string]float64 `json:"observed,omitempty"`
	}
)

// resourceID matches catalog identifiers like "sector001" or "dev010".
var resourceID = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("resource_id", func(fl validator.FieldLevel) bool {
			return resourceID.MatchString(fl.Field().String())
		})
	}
}
