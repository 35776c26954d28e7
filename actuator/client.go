// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package actuator

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/log"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/wallclock"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Client is the MQTT actuation channel. Valve commands are published
	// fire-and-forget at QoS 1; status echoes from the valves are delivered
	// to a registered observer.
	Client struct {
		connect   ConnectionProvider
		clientID  string
		username  string
		password  []byte
		keepAlive uint16
		log       log.Logger

		mu   sync.Mutex
		paho *paho.Client
		conn net.Conn
	}

	// ClientOption modifies the actuation client configuration.
	ClientOption func(*Client)
)

// WithClientID sets the MQTT client ID.
func WithClientID(clientID string) ClientOption {
	return func(c *Client) {
		c.clientID = clientID
	}
}

// WithCredentials sets the MQTT username and password.
func WithCredentials(username string, password []byte) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithKeepAlive sets the MQTT keep-alive interval (with second precision).
func WithKeepAlive(keepAlive time.Duration) ClientOption {
	return func(c *Client) {
		c.keepAlive = uint16(keepAlive.Seconds())
	}
}

// WithLogger sets the logger for the actuation client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.Wrap(logger)
	}
}

// NewClient creates an actuation client from the given connection provider.
func NewClient(connect ConnectionProvider, opt ...ClientOption) *Client {
	c := &Client{
		connect:   connect,
		keepAlive: 60,
	}
	for _, o := range opt {
		o(c)
	}
	if c.clientID == "" {
		c.clientID = randomClientID()
	}
	return c
}

// Connect opens the broker connection and performs the MQTT handshake. It
// must be called before any publish or subscribe.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return &errors.Error{
			Kind:        errors.ActuationFailure,
			Message:     "actuation channel connection failed",
			NestedError: err,
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: c.clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			c.log.Warn(ctx, &errors.Error{
				Kind:        errors.ActuationFailure,
				Message:     "actuation channel client error",
				NestedError: err,
			})
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.log.Log(ctx, slog.LevelWarn,
				"actuation channel server disconnect",
				slog.Int("reasonCode", int(d.ReasonCode)),
			)
		},
	})

	connack, err := client.Connect(ctx, &paho.Connect{
		ClientID:     c.clientID,
		CleanStart:   true,
		KeepAlive:    c.keepAlive,
		Username:     c.username,
		UsernameFlag: c.username != "",
		Password:     c.password,
		PasswordFlag: len(c.password) != 0,
	})
	if err != nil {
		conn.Close()
		return &errors.Error{
			Kind:        errors.ActuationFailure,
			Message:     "actuation channel handshake failed",
			NestedError: err,
		}
	}
	if connack.ReasonCode >= 0x80 {
		conn.Close()
		return &errors.Error{
			Kind:          errors.ActuationFailure,
			Message:       "actuation channel connection refused",
			PropertyName:  "ReasonCode",
			PropertyValue: connack.ReasonCode,
		}
	}

	c.mu.Lock()
	c.paho = client
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Disconnect cleanly closes the broker connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	client := c.paho
	conn := c.conn
	c.paho = nil
	c.conn = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	err := client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	if conn != nil {
		conn.Close()
	}
	return err
}

func (c *Client) client() (*paho.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paho == nil {
		return nil, &errors.Error{
			Kind:    errors.ActuationFailure,
			Message: "actuation channel not connected",
		}
	}
	return c.paho, nil
}

// PublishCommand publishes a valve command for a sector device. The command
// is fire-and-forget; success means the broker acknowledged the publish, not
// that the valve acted on it. Valve confirmations arrive asynchronously as
// status echoes.
func (c *Client) PublishCommand(
	ctx context.Context,
	sectorID, deviceID string,
	cmd pipeline.ValveCommand,
) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	verb, err := wireCommand(cmd.Command)
	if err != nil {
		return err
	}
	commandID := uuid.NewString()
	payload, err := json.Marshal(&CommandMessage{
		CommandID:  commandID,
		DeviceID:   deviceID,
		SectorID:   sectorID,
		Timestamp:  wallclock.Instance.Now().UTC(),
		Command:    verb,
		Percentage: cmd.Percentage,
	})
	if err != nil {
		return &errors.Error{
			Kind:        errors.InternalError,
			Message:     "valve command payload serialization failed",
			NestedError: err,
		}
	}

	if _, err := client.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   CommandTopic(sectorID, deviceID),
		Payload: payload,
	}); err != nil {
		return &errors.Error{
			Kind:        errors.ActuationFailure,
			Message:     "valve command publish failed",
			SectorID:    sectorID,
			DeviceID:    deviceID,
			NestedError: err,
		}
	}

	c.log.Log(ctx, slog.LevelInfo, "valve command published",
		slog.String("commandId", commandID),
		slog.String("sectorId", sectorID),
		slog.String("deviceId", deviceID),
		slog.String("command", verb),
	)
	return nil
}

// SubscribeStatus subscribes to valve status echoes and delivers each parsed
// state to observe. Malformed echoes are logged and dropped. The returned
// function removes the handler.
func (c *Client) SubscribeStatus(
	ctx context.Context,
	observe func(pipeline.ValveState),
) (func(), error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	done := client.AddOnPublishReceived(
		func(pb paho.PublishReceived) (bool, error) {
			if !IsTopicFilterMatch(StatusFilter(), pb.Packet.Topic) {
				return false, nil
			}
			state, err := c.parseEcho(pb.Packet)
			if err != nil {
				c.log.Warn(ctx, err)
				return true, nil
			}
			observe(state)
			return true, nil
		},
	)

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: StatusFilter(),
			QoS:   1,
		}},
	}); err != nil {
		done()
		return nil, &errors.Error{
			Kind:        errors.ActuationFailure,
			Message:     "valve status subscribe failed",
			NestedError: err,
		}
	}
	return done, nil
}

// parseEcho validates a status packet against its topic. The topic levels are
// authoritative for routing; a payload naming a different sector or device is
// rejected rather than trusted.
func (c *Client) parseEcho(p *paho.Publish) (pipeline.ValveState, error) {
	sectorID, deviceID, ok := ParseStatusTopic(p.Topic)
	if !ok {
		return pipeline.ValveState{}, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "valve status topic invalid",
			PropertyName:  "Topic",
			PropertyValue: p.Topic,
		}
	}
	msg, err := parseStatus(p.Payload)
	if err != nil {
		return pipeline.ValveState{}, err
	}
	if msg.SectorID != sectorID || msg.DeviceID != deviceID {
		return pipeline.ValveState{}, &errors.Error{
			Kind:     errors.ValidationError,
			Message:  "valve status payload does not match its topic",
			SectorID: sectorID,
			DeviceID: deviceID,
		}
	}
	return msg.ValveState()
}

// Client IDs must be between 1 and 23 UTF-8 encoded bytes in length and only
// contain alphanumeric characters.
const maxClientIDLength = 23

var clientIDCharacters = []byte(
	"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
)

func randomClientID() string {
	seed := wallclock.Instance.Now().UnixNano()
	// #nosec G404
	r := rand.New(rand.NewSource(seed))

	id := make([]byte, maxClientIDLength)
	for i := range id {
		id[i] = clientIDCharacters[r.Intn(len(clientIDCharacters))]
	}
	return string(id)
}
