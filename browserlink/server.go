// Package browserlink is the WebSocket surface the embedded event-site
// browser talks to. The browser streams every navigation as a url frame,
// the server answers with the classified state, and may push a navigate
// frame when the browser wandered off the event site. On connect the
// stored local-storage snapshot is replayed so the embedded view can
// restore the logged-in session.
package browserlink

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/core"

	"robis-bridge/nav"
	"robis-bridge/session"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Frame types of the browser link protocol.
const (
	TypeURL      = "url"
	TypeState    = "state"
	TypeNavigate = "navigate"
	TypeStorage  = "storage"
	TypePing     = "ping"
	TypePong     = "pong"
)

type Frame struct {
	Type   string            `json:"type"`
	URL    string            `json:"url,omitempty"`
	State  *nav.State        `json:"state,omitempty"`
	Values map[string]string `json:"values,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the single embedded-browser connection. A newly accepted
// connection replaces the previous one.
type Server struct {
	Tracker *nav.Tracker
	Session *session.Store

	mu   sync.Mutex
	conn *Conn
}

func NewServer(tracker *nav.Tracker, store *session.Store) *Server {
	return &Server{Tracker: tracker, Session: store}
}

// Register binds the /browser/link route.
func Register(app core.App, srv *Server) {
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		se.Router.Any("/browser/link", func(e *core.RequestEvent) error {
			return srv.Handle(e.Response, e.Request)
		})
		return se.Next()
	})
}

// Handle upgrades the request and serves frames until the peer drops.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	slog.Debug("browserlink.connection", "remote", r.RemoteAddr)
	conn := &Conn{ws: ws}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	s.Tracker.Attach(conn)
	go s.serve(conn)
	return nil
}

func (s *Server) serve(c *Conn) {
	defer s.release(c)

	s.replayStorage(c)
	_ = c.SendJSON(stateFrame(s.Tracker.State()))

	stopPing := c.startPingLoop()
	defer stopPing()

	for {
		var f Frame
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		if err := c.ws.ReadJSON(&f); err != nil {
			slog.Debug("browserlink.read.closed", "err", err)
			return
		}
		s.handleFrame(c, f)
	}
}

func (s *Server) handleFrame(c *Conn, f Frame) {
	switch f.Type {
	case TypeURL:
		st := s.Tracker.Observe(f.URL)
		_ = c.SendJSON(stateFrame(st))
	case TypePing:
		_ = c.SendJSON(Frame{Type: TypePong})
	case TypePong:
		// ignore
	default:
		slog.Debug("browserlink.frame.unknown", "type", f.Type)
	}
}

// release closes the connection and, when it is still the active one,
// detaches it from the tracker so redirects stop targeting a dead
// socket. A connection already replaced by a newer one leaves the
// newer attachment alone.
func (s *Server) release(c *Conn) {
	_ = c.Close()
	s.mu.Lock()
	current := s.conn == c
	if current {
		s.conn = nil
	}
	s.mu.Unlock()
	if current {
		s.Tracker.Attach(nil)
	}
}

// replayStorage pushes the stored local-storage snapshot, if any, so the
// embedded view starts out logged in.
func (s *Server) replayStorage(c *Conn) {
	if s.Session == nil {
		return
	}
	cred, err := s.Session.Get()
	if err != nil || len(cred.Storage) == 0 {
		return
	}
	_ = c.SendJSON(Frame{Type: TypeStorage, Values: cred.Storage})
}

func stateFrame(st nav.State) Frame {
	return Frame{Type: TypeState, State: &st}
}

// Conn wraps a websocket connection with JSON helpers. Writes are
// serialized; the ping loop and the tracker both send on it.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *Conn) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(15 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *Conn) Close() error { return c.ws.Close() }

// NavigateTo implements nav.Browser.
func (c *Conn) NavigateTo(url string) {
	if err := c.SendJSON(Frame{Type: TypeNavigate, URL: url}); err != nil {
		slog.Warn("browserlink.navigate.error", "err", err)
	}
}

func (c *Conn) startPingLoop() func() {
	stop := make(chan struct{})
	var once sync.Once
	ticker := time.NewTicker(pingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.SendJSON(Frame{Type: TypePing}); err != nil {
					_ = c.ws.Close()
					return
				}
			}
		}
	}()
	return func() {
		once.Do(func() { close(stop) })
	}
}
