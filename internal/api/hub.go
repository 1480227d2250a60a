/*
Package api
File: hub.go
Description:
    The WebSocket Hub pushes render events from the client core to every
    connected UI.

    The core publishes through Notify on its loop goroutine, which must never
    block, so events are queued on a buffered channel and the Hub goroutine
    fans them out. Each UI picks its frame format on connect:
    '/ws' sends JSON text frames, '/ws?codec=msgpack' sends MessagePack
    binary frames.

    Architecture:
    - Hub: registry of connected UIs, owned by Run.
    - Client: one browser connection.
    - ServeWs: upgrades a GET request and registers the connection.
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/everforgeworks/galaxies-client/internal/client"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Codec names accepted in the 'codec' query parameter.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Client represents a single connected UI.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan client.Event
	codec string
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients map[*Client]bool

	// Broadcast receives events from the core.
	Broadcast chan client.Event

	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns

	ErrorLog *log.Logger
}

// NewHub creates a Hub. Run must be started before events are delivered.
func NewHub(errorLog *log.Logger) *Hub {
	if errorLog == nil {
		errorLog = log.Default()
	}
	return &Hub{
		Broadcast:  make(chan client.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		ErrorLog:   errorLog,
	}
}

// Notify implements client.Notifier. Events are dropped when the queue is full.
func (h *Hub) Notify(e client.Event) {
	select {
	case h.Broadcast <- e:
	default:
		h.ErrorLog.Printf("WS: broadcast queue full, dropped %s event", e.Kind)
	}
}

// Run is the main event loop for the Hub. It returns when ctx is cancelled,
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case e := <-h.Broadcast:
			for c := range h.clients {
				select {
				case c.send <- e:
				default:
					// Slow reader.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and attaches the connection to the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	codec := r.URL.Query().Get("codec")
	if codec == "" {
		codec = CodecJSON
	}
	if codec != CodecJSON && codec != CodecMsgpack {
		http.Error(w, "unknown codec", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.ErrorLog.Println("WS Upgrade Error:", err)
		return
	}

	c := &Client{hub: hub, conn: conn, send: make(chan client.Event, 64), codec: codec}
	select {
	case hub.register <- c:
	case <-hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// encode renders an event in the client's frame format.
func (c *Client) encode(e client.Event) (int, []byte, error) {
	if c.codec == CodecMsgpack {
		b, err := encodeMsgpack(e)
		return websocket.BinaryMessage, b, err
	}
	b, err := json.Marshal(e)
	return websocket.TextMessage, b, err
}

// encodeMsgpack falls back to the json tags so both codecs share field names.
func encodeMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readPump only watches for the close handshake and pongs; UI actions go through HTTP.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.ErrorLog.Printf("WS Error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind, frame, err := c.encode(e)
			if err != nil {
				c.hub.ErrorLog.Printf("WS encode %s: %v", e.Kind, err)
				continue
			}
			if err := c.conn.WriteMessage(kind, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
