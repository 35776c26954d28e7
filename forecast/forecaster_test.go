// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package forecast_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/forecast"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

func history(n int) []pipeline.Reading {
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	series := make([]pipeline.Reading, n)
	for i := range series {
		series[i] = pipeline.Reading{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			DeviceID:  "dev010",
			Metric:    pipeline.Temperature,
			Value:     70,
		}
	}
	return series
}

func TestPredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/predict", r.URL.Path)

			var req struct {
				DeviceID string `json:"device_id"`
				Metric   string `json:"metric"`
				History  []struct {
					Value float64 `json:"value"`
				} `json:"history"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "dev010", req.DeviceID)
			require.Equal(t, "temperature", req.Metric)
			require.Len(t, req.History, 5)

			_, _ = w.Write([]byte(`{"points":[
				{"timestamp":"2026-08-30T10:05:00Z","value":71.2},
				{"timestamp":"2026-08-30T10:06:00Z","value":72.8}
			]}`))
		},
	))
	t.Cleanup(server.Close)

	forecaster := forecast.NewHTTPForecaster(server.URL, 10*time.Second)

	points, err := forecaster.Predict(context.Background(), history(5))
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		require.True(t, p.IsPrediction)
		require.Equal(t, "dev010", p.DeviceID)
		require.Equal(t, pipeline.Temperature, p.Metric)
	}
	require.Equal(t, 71.2, points[0].Value)
}

func TestPredictEmptyHistory(t *testing.T) {
	forecaster := forecast.NewHTTPForecaster("http://localhost:1", time.Second)

	_, err := forecaster.Predict(context.Background(), nil)
	require.True(t, errors.IsKind(err, errors.InsufficientHistory))
}

func TestPredictServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	))
	t.Cleanup(server.Close)

	forecaster := forecast.NewHTTPForecaster(server.URL, time.Second)

	_, err := forecaster.Predict(context.Background(), history(3))
	require.True(t, errors.IsKind(err, errors.DataUnavailable))
}

type fixedSource struct {
	series []pipeline.Reading
	err    error
}

func (s fixedSource) Window(
	context.Context,
	string,
	pipeline.Metric,
	time.Duration,
) ([]pipeline.Reading, error) {
	return s.series, s.err
}

type fixedModel struct {
	points []pipeline.Reading
	err    error
}

func (m fixedModel) Predict(
	context.Context,
	[]pipeline.Reading,
) ([]pipeline.Reading, error) {
	return m.points, m.err
}

func TestWindowsAppendsPredictions(t *testing.T) {
	w := forecast.Windows{
		Base: fixedSource{series: history(3)},
		Model: fixedModel{points: []pipeline.Reading{
			{DeviceID: "dev010", IsPrediction: true, Value: 99},
		}},
	}

	series, err := w.Window(
		context.Background(), "dev010", pipeline.Temperature, time.Minute,
	)
	require.NoError(t, err)
	require.Len(t, series, 4)
	require.True(t, series[3].IsPrediction)
}

func TestWindowsDegradesWithoutModel(t *testing.T) {
	w := forecast.Windows{
		Base: fixedSource{series: history(3)},
		Model: fixedModel{err: &errors.Error{
			Kind:    errors.DataUnavailable,
			Message: "forecast unavailable",
		}},
	}

	series, err := w.Window(
		context.Background(), "dev010", pipeline.Temperature, time.Minute,
	)
	require.NoError(t, err)
	require.Len(t, series, 3)
}
