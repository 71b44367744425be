package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turretctl/turretd/internal/config"
	"github.com/turretctl/turretd/internal/link"
	"github.com/turretctl/turretd/internal/logic/motion"
)

// maxTargetBody caps the size of a POST /target body.
const maxTargetBody = 1 << 10

// StatusFunc returns the latest controller snapshot.
type StatusFunc func() motion.Status

// Poster accepts target commands for the control loop. *link.Mailbox
// implements it.
type Poster interface {
	Post(c link.Command)
}

// CalibrationConfig is the read-only view of the rig configuration served on
// GET /config.
type CalibrationConfig struct {
	TickUs           int    `json:"tick_us"`
	TurretScaleMilli int    `json:"turret_scale_milli"`
	TiltScaleMilli   int    `json:"tilt_scale_milli"`
	DrawSteps        int    `json:"draw_steps"`
	DwellTicks       int    `json:"dwell_ticks"`
	SettleSpan       int    `json:"settle_span"`
	FireTolerance    int    `json:"fire_tolerance"`
	CooldownMs       int    `json:"cooldown_ms"`
	HomeAfterMs      int    `json:"home_after_ms"`
	PowerDownAfterMs int    `json:"power_down_after_ms"`
	MaxCoord         int    `json:"max_coord"`
	ListenAddr       string `json:"listen_addr"`
}

// CalibrationFromConfig extracts the values shown to operators.
func CalibrationFromConfig(cfg *config.Config) CalibrationConfig {
	return CalibrationConfig{
		TickUs:           cfg.Timing.TickUs,
		TurretScaleMilli: cfg.TurretAxis.ScaleMilli,
		TiltScaleMilli:   cfg.TiltAxis.ScaleMilli,
		DrawSteps:        cfg.Shot.DrawSteps,
		DwellTicks:       cfg.Shot.DwellTicks,
		SettleSpan:       cfg.Targeting.SettleSpan,
		FireTolerance:    cfg.Targeting.FireTolerance,
		CooldownMs:       cfg.Targeting.CooldownMs,
		HomeAfterMs:      cfg.Timing.HomeAfterMs,
		PowerDownAfterMs: cfg.Timing.PowerDownAfterMs,
		MaxCoord:         link.MaxCoord,
		ListenAddr:       cfg.Link.ListenAddr,
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Session string        `json:"session"`
	Status  motion.Status `json:"status"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Status      StatusFunc
	Targets     Poster
	Calibration CalibrationConfig
	Session     string
	staticFS    fs.FS
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
// If status is nil, GET /status returns 503; if targets is nil, POST /target
// returns 503.
func NewHandlers(broadcaster *StatusBroadcaster, status StatusFunc, targets Poster, calibration CalibrationConfig, session string, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Status:      status,
		Targets:     targets,
		Calibration: calibration,
		Session:     session,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			// The status page is served from the same host; any LAN client may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConfig returns the calibration values as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Calibration)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus returns the last controller snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		http.Error(w, "controller not running", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{Session: h.Session, Status: h.Status()})
}

// ValidateCommand checks an injected command. Absolute coordinates must lie in
// the detector frame; deltas must not exceed its size.
func ValidateCommand(c link.Command) error {
	if c.Delta {
		if c.X < -link.MaxCoord || c.X > link.MaxCoord || c.Y < -link.MaxCoord || c.Y > link.MaxCoord {
			return fmt.Errorf("delta (%d, %d) exceeds ±%d", c.X, c.Y, link.MaxCoord)
		}
		return nil
	}
	if !link.InRange(c.X, c.Y) {
		return fmt.Errorf("target (%d, %d) outside 0-%d", c.X, c.Y, link.MaxCoord)
	}
	return nil
}

// HandleTarget handles POST /target: a manual target, optionally relative or
// forcing a shot, queued like a detector packet.
func (h *Handlers) HandleTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var c link.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTargetBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateCommand(c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Targets == nil {
		http.Error(w, "control loop not configured", http.StatusServiceUnavailable)
		return
	}
	h.Targets.Post(c)
	h.Broadcaster.Broadcast("info", fmt.Sprintf("Manual target x=%d y=%d delta=%v fire=%v", c.X, c.Y, c.Delta, c.Fire))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()
	log.Printf("web: status client connected (%d total)", h.Broadcaster.Clients())

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusWS handles GET /status/ws: the same stream as SSE, one JSON
// event per text message. Incoming messages are ignored.
func (h *Handlers) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()
	log.Printf("web: status client connected (%d total)", h.Broadcaster.Clients())

	// Reader: handles pongs and notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket read: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
