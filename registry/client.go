// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/container"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/log"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/wallclock"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/retry"
)

type (
	// Endpoint locates a peer service.
	Endpoint struct {
		ServiceType string `json:"service_type"`
		Address     string `json:"address"`
	}

	// Descriptor describes this service to the registry.
	Descriptor struct {
		ServiceType string            `json:"service_type"`
		Address     string            `json:"address"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}

	// Client talks to the service registry over HTTP. Discovered endpoints
	// are cached; when the registry is unreachable the last known endpoint
	// is served so an analysis cycle never blocks on discovery.
	Client struct {
		baseURL  string
		http     *http.Client
		backoff  retry.Policy
		interval time.Duration
		log      log.Logger

		cache container.SyncMap[string, Endpoint]
	}

	// ClientOption modifies the registry client configuration.
	ClientOption func(*Client)
)

// Steady-state re-registration interval after a successful registration.
const defaultRegisterInterval = 60 * time.Second

// WithHTTPClient overrides the HTTP client used for registry calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithBackoff overrides the retry policy for registration.
func WithBackoff(backoff retry.Policy) ClientOption {
	return func(c *Client) {
		c.backoff = backoff
	}
}

// WithRegisterInterval sets the steady-state re-registration interval.
func WithRegisterInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.interval = interval
	}
}

// WithLogger sets the logger for the registry client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.Wrap(logger)
	}
}

// NewClient creates a registry client for the given base URL.
func NewClient(baseURL string, opt ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		interval: defaultRegisterInterval,
		cache:    container.NewSyncMap[string, Endpoint](),
	}
	for _, o := range opt {
		o(c)
	}
	if c.backoff == nil {
		c.backoff = &retry.ExponentialBackoff{
			MinInterval: 5 * time.Second,
			MaxInterval: 300 * time.Second,
		}
	}
	return c
}

// Discover resolves the endpoint for a service type. On registry failure the
// last cached endpoint is returned instead; discovery only errors when the
// registry is unreachable and no endpoint was ever cached.
func (c *Client) Discover(
	ctx context.Context,
	serviceType string,
) (Endpoint, error) {
	endpoint, err := c.fetch(ctx, serviceType)
	if err == nil {
		c.cache.Store(serviceType, endpoint)
		return endpoint, nil
	}

	if cached, ok := c.cache.Load(serviceType); ok {
		c.log.Warn(ctx, err)
		c.log.Log(ctx, slog.LevelInfo, "using cached endpoint",
			slog.String("serviceType", serviceType),
			slog.String("address", cached.Address),
		)
		return cached, nil
	}
	return Endpoint{}, err
}

func (c *Client) fetch(
	ctx context.Context,
	serviceType string,
) (Endpoint, error) {
	u := c.baseURL + "/services/" + url.PathEscape(serviceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Endpoint{}, &errors.Error{
			Kind:        errors.InternalError,
			Message:     "discovery request invalid",
			Service:     serviceType,
			NestedError: err,
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return Endpoint{}, discoveryUnavailable(serviceType, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Endpoint{}, discoveryUnavailable(serviceType, fmt.Errorf(
			"registry returned status %d", res.StatusCode,
		))
	}

	var endpoint Endpoint
	if err := json.NewDecoder(res.Body).Decode(&endpoint); err != nil {
		return Endpoint{}, discoveryUnavailable(serviceType, err)
	}
	if endpoint.Address == "" {
		return Endpoint{}, discoveryUnavailable(serviceType, fmt.Errorf(
			"registry returned an empty address",
		))
	}
	if endpoint.ServiceType == "" {
		endpoint.ServiceType = serviceType
	}
	return endpoint, nil
}

// Register announces this service to the registry. A single attempt; use
// Maintain for the retried, periodically refreshed registration.
func (c *Client) Register(ctx context.Context, descriptor Descriptor) error {
	body, err := json.Marshal(descriptor)
	if err != nil {
		return &errors.Error{
			Kind:        errors.InternalError,
			Message:     "service descriptor serialization failed",
			Service:     descriptor.ServiceType,
			NestedError: err,
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/services",
		bytes.NewReader(body),
	)
	if err != nil {
		return &errors.Error{
			Kind:        errors.InternalError,
			Message:     "registration request invalid",
			Service:     descriptor.ServiceType,
			NestedError: err,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return discoveryUnavailable(descriptor.ServiceType, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return discoveryUnavailable(descriptor.ServiceType, fmt.Errorf(
			"registry returned status %d", res.StatusCode,
		))
	}
	return nil
}

// Maintain keeps the registration alive for the life of the context. Each
// registration is retried with exponential backoff until it succeeds; a
// success resets the backoff and schedules the next registration at the
// steady-state interval. Maintain only returns the context error.
func (c *Client) Maintain(ctx context.Context, descriptor Descriptor) error {
	for {
		err := c.backoff.Start(ctx, "register", func(
			ctx context.Context,
		) (bool, error) {
			return true, c.Register(ctx, descriptor)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			c.log.Log(ctx, slog.LevelInfo, "service registered",
				slog.String("serviceType", descriptor.ServiceType),
				slog.String("address", descriptor.Address),
			)
		}

		select {
		case <-wallclock.Instance.After(c.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func discoveryUnavailable(serviceType string, err error) error {
	return &errors.Error{
		Kind:        errors.DiscoveryUnavailable,
		Message:     "registry unavailable",
		Service:     serviceType,
		NestedError: err,
	}
}
