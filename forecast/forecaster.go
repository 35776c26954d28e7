// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package forecast calls the external forecasting model and feeds its
// predicted points back into anomaly detection. The model itself (ARIMA,
// regression) lives behind the HTTP contract; this package only speaks
// "predict(history) -> forecast points".
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Forecaster predicts near-term points from a reading history. The
	// returned points carry IsPrediction and share the history's device
	// and metric.
	Forecaster interface {
		Predict(
			ctx context.Context,
			history []pipeline.Reading,
		) ([]pipeline.Reading, error)
	}

	// HTTPForecaster is a Forecaster backed by the forecasting service.
	HTTPForecaster struct {
		baseURL string
		http    *http.Client
	}

	predictRequest struct {
		DeviceID string         `json:"device_id"`
		Metric   string         `json:"metric"`
		History  []historyPoint `json:"history"`
	}

	historyPoint struct {
		Timestamp time.Time `json:"timestamp"`
		Value     float64   `json:"value"`
	}

	predictResponse struct {
		Points []forecastPoint `json:"points"`
	}

	forecastPoint struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
	}
)

// NewHTTPForecaster creates a Forecaster backed by the forecasting service.
func NewHTTPForecaster(baseURL string, timeout time.Duration) *HTTPForecaster {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForecaster{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Predict sends the history to the model and returns the predicted points,
// tagged as predictions. An empty history cannot be predicted from.
func (f *HTTPForecaster) Predict(
	ctx context.Context,
	history []pipeline.Reading,
) ([]pipeline.Reading, error) {
	if len(history) == 0 {
		return nil, &errors.Error{
			Kind:         errors.InsufficientHistory,
			Message:      "no history to predict from",
			PropertyName: "History",
		}
	}
	deviceID := history[0].DeviceID
	metric := history[0].Metric

	points := make([]historyPoint, len(history))
	for i, r := range history {
		points[i] = historyPoint{Timestamp: r.Timestamp, Value: r.Value}
	}
	body, err := json.Marshal(&predictRequest{
		DeviceID: deviceID,
		Metric:   string(metric),
		History:  points,
	})
	if err != nil {
		return nil, &errors.Error{
			Kind:        errors.InternalError,
			Message:     "predict request serialization failed",
			DeviceID:    deviceID,
			NestedError: err,
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		f.baseURL+"/predict",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, &errors.Error{
			Kind:        errors.InternalError,
			Message:     "predict request invalid",
			DeviceID:    deviceID,
			NestedError: err,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := f.http.Do(req)
	if err != nil {
		return nil, unavailable(deviceID, metric, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, unavailable(deviceID, metric, fmt.Errorf(
			"forecaster returned status %d", res.StatusCode,
		))
	}

	var parsed predictResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, unavailable(deviceID, metric, err)
	}

	forecast := make([]pipeline.Reading, len(parsed.Points))
	for i, p := range parsed.Points {
		at, err := iso8601.ParseString(p.Timestamp)
		if err != nil {
			return nil, unavailable(deviceID, metric, fmt.Errorf(
				"invalid timestamp %q: %w", p.Timestamp, err,
			))
		}
		forecast[i] = pipeline.Reading{
			Timestamp:    at,
			DeviceID:     deviceID,
			Metric:       metric,
			Value:        p.Value,
			IsPrediction: true,
		}
	}
	return forecast, nil
}

func unavailable(deviceID string, metric pipeline.Metric, err error) error {
	return &errors.Error{
		Kind:        errors.DataUnavailable,
		Message:     "forecast unavailable",
		DeviceID:    deviceID,
		Metric:      string(metric),
		NestedError: err,
	}
}
