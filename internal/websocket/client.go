// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package websocket

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// Frame types on the wire.
const (
	FrameHistory = "history"
	FrameEvents  = "events"
	FramePing    = "ping"
	FramePong    = "pong"
)

// Frame is a WebSocket message. Data is always a list of events, so a
// dashboard can treat the history batch and live events uniformly.
type Frame struct {
	Type string         `json:"type"`
	Data []models.Event `json:"data"`
}

// Format selects how deliveries are written.
type Format int

const (
	// FormatTyped writes every delivery as a Frame.
	FormatTyped Format = iota

	// FormatBare writes every delivery as a bare JSON array of events, the
	// shape the original dashboard reads. Client messages are ignored.
	FormatBare
)

func frameFor(d Delivery) Frame {
	if d.Kind == KindHistory {
		return Frame{Type: FrameHistory, Data: d.Events}
	}
	return Frame{Type: FrameEvents, Data: d.Events}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	obs     *Observer
	format  Format
	control chan Frame
}

// NewClient attaches a new observer for conn that writes typed frames.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return NewClientWithFormat(hub, conn, FormatTyped)
}

// NewClientWithFormat attaches a new observer for conn.
func NewClientWithFormat(hub *Hub, conn *websocket.Conn, format Format) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		obs:     hub.Attach(),
		format:  format,
		control: make(chan Frame, 4),
	}
}

// ID returns the underlying observer id.
func (c *Client) ID() uint64 {
	return c.obs.ID()
}

// readPump handles control frames and detaches the observer when the
// connection goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c.obs)
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("observer_id", c.ID()).Msg("unexpected websocket close error")
			}
			return
		}

		if c.format == FormatBare {
			continue
		}
		var msg Frame
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == FramePing {
			select {
			case c.control <- Frame{Type: FramePong}:
			default:
			}
		}
	}
}

// writePump drains the observer's deliveries onto the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case d, ok := <-c.obs.C():
			if !ok {
				c.writeClose()
				return
			}
			if err := c.writeDelivery(d); err != nil {
				logging.Debug().Err(err).Uint64("observer_id", c.ID()).Msg("failed to write websocket frame")
				c.hub.Detach(c.obs)
				return
			}

		case f := <-c.control:
			if err := c.writeFrame(f); err != nil {
				c.hub.Detach(c.obs)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Detach(c.obs)
				return
			}
		}
	}
}

func (c *Client) writeDelivery(d Delivery) error {
	if c.format != FormatBare {
		return c.writeFrame(frameFor(d))
	}
	events := d.Events
	if events == nil {
		events = []models.Event{}
	}
	return c.writeJSON(events)
}

func (c *Client) writeFrame(f Frame) error {
	return c.writeJSON(f)
}

func (c *Client) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) writeClose() {
	code, text := websocket.CloseGoingAway, "server closing"
	if c.obs.Dropped() {
		code, text = websocket.ClosePolicyViolation, "observer too slow"
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
