// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package forecast

import (
	"context"
	"log/slog"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/log"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// WindowSource matches the window contract of the analysis pipeline.
	WindowSource interface {
		Window(
			ctx context.Context,
			deviceID string,
			metric pipeline.Metric,
			lookback time.Duration,
		) ([]pipeline.Reading, error)
	}

	// Windows decorates a WindowSource with predicted points, so detection
	// sees anomalies before they are measured. A failed prediction degrades
	// to the measured window alone.
	Windows struct {
		Base  WindowSource
		Model Forecaster

		Logger *slog.Logger
	}
)

// Window fetches the measured window and appends the model's predictions.
func (w Windows) Window(
	ctx context.Context,
	deviceID string,
	metric pipeline.Metric,
	lookback time.Duration,
) ([]pipeline.Reading, error) {
	series, err := w.Base.Window(ctx, deviceID, metric, lookback)
	if err != nil {
		return nil, err
	}

	predicted, err := w.Model.Predict(ctx, series)
	if err != nil {
		logger := log.Wrap(w.Logger)
		logger.Warn(ctx, err)
		return series, nil
	}
	return append(series, predicted...), nil
}
