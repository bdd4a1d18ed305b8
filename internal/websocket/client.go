package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer = 32
	readLimit  = 512
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	writeWait  = 10 * time.Second
)

// Server upgrades dashboard connections and subscribes them to one guild.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewServer accepts browser connections only from origins; "*" allows any.
func NewServer(hub *Hub, origins []string, log logrus.FieldLogger) *Server {
	return &Server{
		hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(origins)},
		log:      log,
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

// Serve streams the guild's balance updates until the client disconnects.
// On a failed upgrade the upgrader has already written the error response.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, guildID string) {
	log := s.log.WithField("guild_id", guildID)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &Client{
		hub:     s.hub,
		guildID: guildID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
	s.hub.Register(guildID, client)
	log.Debug("balance subscriber connected")
	go client.writePump()
	client.readPump()
	log.Debug("balance subscriber disconnected")
}

// Client is one dashboard connection. send is never closed; shutdown is
// signalled through done so a late broadcast cannot panic.
type Client struct {
	hub     *Hub
	guildID string
	conn    *websocket.Conn
	send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c.guildID, c)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
