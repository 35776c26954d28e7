// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package api serves the inbound HTTP API consumed by the dashboard and the
// analytics bot.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/cascade"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/log"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/mitigation"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/monitor"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

// Server wires the analysis components into the inbound API.
type Server struct {
	Sectors    monitor.SectorSource
	Correlator *cascade.Correlator
	Controller *mitigation.Controller
	Thresholds *mitigation.ThresholdStore

	// Lookback is the reading window for on-demand analyses. Defaults
	// to 10m.
	Lookback time.Duration

	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			s.Gatherer, promhttp.HandlerOpts{},
		)))
	}

	router.POST("/cascade_analysis", s.cascadeAnalysis)
	router.POST("/anomaly", s.anomaly)
	router.GET("/thresholds", s.getThresholds)
	router.POST("/thresholds", s.setThresholds)

	return router
}

func (s *Server) cascadeAnalysis(c *gin.Context) {
	var req CascadeAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sector, err := s.sector(c.Request.Context(), req.SectorID)
	if err != nil {
		s.fail(c, err)
		return
	}

	metric := pipeline.Metric(req.DataType)
	report, err := s.Correlator.Correlate(
		c.Request.Context(),
		sector,
		metric,
		s.lookback(),
		s.Thresholds.Get().For(metric),
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) anomaly(c *gin.Context) {
	var req AnomalyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	observed := make(map[pipeline.Metric]float64, len(req.Observed))
	for name, value := range req.Observed {
		metric := pipeline.Metric(name)
		if !metric.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unknown observed metric: " + name,
			})
			return
		}
		observed[metric] = value
	}

	decision, err := s.Controller.Decide(
		c.Request.Context(),
		mitigation.AnomalySignal{
			SectorID: req.SectorID,
			DeviceID: req.DeviceID,
			Metric:   pipeline.Metric(req.Type),
			Severity: pipeline.Severity(req.Severity),
			Observed: observed,
		},
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) getThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.Thresholds.Get())
}

func (s *Server) setThresholds(c *gin.Context) {
	var th mitigation.Thresholds
	if err := c.ShouldBindJSON(&th); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if th.Temperature.High <= th.Temperature.Low ||
		th.Pressure.High <= th.Pressure.Low {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "each threshold high must exceed its low",
		})
		return
	}

	s.Thresholds.Set(th)
	log.Wrap(s.Logger).Log(
		c.Request.Context(), slog.LevelInfo, "thresholds updated",
		slog.Float64("temperatureHigh", th.Temperature.High),
		slog.Float64("pressureHigh", th.Pressure.High),
	)
	c.JSON(http.StatusOK, th)
}

func (s *Server) sector(
	ctx context.Context,
	sectorID string,
) (*pipeline.Sector, error) {
	sectors, err := s.Sectors.Sectors(ctx)
	if err != nil {
		return nil, err
	}
	for _, sector := range sectors {
		if sector.ID == sectorID {
			return sector, nil
		}
	}
	return nil, &errors.Error{
		Kind:     errors.ValidationError,
		Message:  "unknown sector",
		SectorID: sectorID,
	}
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	log.Wrap(s.Logger).Err(c.Request.Context(), err)

	status := http.StatusInternalServerError
	switch {
	case errors.IsKind(err, errors.ValidationError):
		status = http.StatusBadRequest
	case errors.IsKind(err, errors.StateUnknown):
		status = http.StatusConflict
	case errors.IsKind(err, errors.ActuationFailure):
		status = http.StatusBadGateway
	case errors.IsKind(err, errors.DataUnavailable),
		errors.IsKind(err, errors.DiscoveryUnavailable):
		status = http.StatusServiceUnavailable
	case errors.IsKind(err, errors.Timeout):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) lookback() time.Duration {
	if s.Lookback == 0 {
		return 10 * time.Minute
	}
	return s.Lookback
}
