package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hackmesh/termhack/pkg/archive"
	"github.com/hackmesh/termhack/pkg/game"
)

// WebServer provides HTTP and WebSocket transport alongside the TCP
// listener: a browser terminal, health and metrics endpoints, and a
// small JSON API.
type WebServer struct {
	game      *game.Game
	srv       *Server
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewWebServer creates a web server bound to the game.
func NewWebServer(g *game.Game, srv *Server) *WebServer {
	ws := &WebServer{
		game:      g,
		srv:       srv,
		mux:       http.NewServeMux(),
		auth:      NewAuthService(g.Store, g.Conf.JWTSecret),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	ws.registerRoutes()
	return ws
}

func (ws *WebServer) registerRoutes() {
	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", ws.game.Conf.HTTPPort),
		Handler: ws.mux,
	}

	wsPath := ws.game.Conf.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	ws.mux.HandleFunc("GET "+wsPath, ws.handleWebSocket)

	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.Handle("GET /api/v1/status",
		ws.authMiddleware(false, http.HandlerFunc(ws.handleStatus)))
	ws.mux.Handle("GET /api/v1/players",
		ws.authMiddleware(true, http.HandlerFunc(ws.handlePlayers)))
	ws.mux.Handle("POST /api/v1/backup",
		ws.authMiddleware(true, http.HandlerFunc(ws.handleBackup)))

	ws.mux.HandleFunc("GET /healthz", ws.handleHealth)

	if ws.game.Metrics != nil {
		ws.mux.Handle("GET /metrics", ws.game.Metrics.Handler())
	}
}

// Start begins listening and blocks until shutdown.
func (ws *WebServer) Start() error {
	log.Printf("Web server listening on %s", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// authMiddleware validates the bearer token; adminOnly additionally
// requires the admin claim.
func (ws *WebServer) authMiddleware(adminOnly bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
			return
		}
		claims, err := ws.auth.ValidateToken(authHeader[7:])
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		if adminOnly && !claims.Admin {
			http.Error(w, `{"error":"admin required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- WebSocket terminal ---

// WSMessage is the JSON frame format for the browser terminal.
type WSMessage struct {
	Type    string   `json:"type"`
	Text    string   `json:"text,omitempty"`
	Lines   []string `json:"lines,omitempty"`
	Command string   `json:"command,omitempty"`
	Success *bool    `json:"success,omitempty"`
}

// wsConn serializes writes to the WebSocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

// handleWebSocket upgrades the connection and runs the same login and
// dispatch flow as the TCP listener, framed as JSON.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	wc := &wsConn{conn: conn}
	d := &Descriptor{
		ID:       ws.srv.Conns.NextID(),
		Conn:     nullConn{},
		State:    ConnLogin,
		Addr:     r.RemoteAddr,
		ConnTime: time.Now(),
		LastCmd:  time.Now(),
		Retries:  ws.srv.Config.MaxRetries,
	}
	d.SendFunc = func(msg string) {
		wc.sendJSON(WSMessage{Type: "text", Text: msg})
	}
	ws.srv.Conns.Add(d)

	// A token in the query string skips the interactive login.
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := ws.auth.ValidateToken(token)
		if err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "invalid token"})
			ws.srv.Conns.Remove(d)
			conn.Close()
			return
		}
		if ws.srv.Conns.Login(d, claims.Player) {
			ws.srv.attachSession(d, claims.Player)
			wc.sendJSON(WSMessage{Type: "login", Text: claims.Player})
		} else {
			wc.sendJSON(WSMessage{Type: "error", Text: "already connected"})
		}
	} else {
		wc.sendJSON(WSMessage{Type: "welcome",
			Text: "Connected. Send {\"type\":\"command\",\"command\":\"connect name password\"} to log in."})
	}

	go ws.wsReadLoop(d, wc)
}

func (ws *WebServer) wsReadLoop(d *Descriptor, wc *wsConn) {
	defer func() {
		ws.srv.logout(d)
		ws.srv.Conns.Remove(d)
		wc.conn.Close()
		log.Printf("[ws:%d] WebSocket closed from %s", d.ID, d.Addr)
	}()

	for {
		_, msgBytes, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws:%d] read error: %v", d.ID, err)
			}
			return
		}
		d.LastCmd = time.Now()

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "invalid JSON message"})
			continue
		}
		if msg.Type != "command" {
			wc.sendJSON(WSMessage{Type: "error", Text: "unknown message type: " + msg.Type})
			continue
		}

		if d.State == ConnLogin {
			ws.srv.handleLoginCommand(d, msg.Command)
			continue
		}
		d.CmdCount++
		res := ws.game.Dispatch(d.Session, msg.Command)
		success := res.Success
		out := WSMessage{Type: "result", Lines: res.Output, Success: &success}
		for _, line := range res.Educational {
			out.Lines = append(out.Lines, "[learn] "+line)
		}
		wc.sendJSON(out)
	}
}

// --- HTTP handlers ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	content := ws.game.Content()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":           ws.game.Conf.Name,
		"players_online": len(ws.srv.Conns.ConnectedPlayers()),
		"connections":    ws.srv.Conns.Count(),
		"hosts":          content.World.HostCount(),
		"missions":       len(content.Missions.All()),
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
	})
}

func (ws *WebServer) handlePlayers(w http.ResponseWriter, r *http.Request) {
	type playerEntry struct {
		Name     string `json:"name"`
		Addr     string `json:"addr"`
		OnFor    string `json:"on_for"`
		Commands int    `json:"commands"`
		Mission  string `json:"mission"`
		Credits  int    `json:"credits"`
	}
	var out []playerEntry
	for _, d := range ws.srv.Conns.AllDescriptors() {
		if d.State != ConnConnected || d.Session == nil {
			continue
		}
		out = append(out, playerEntry{
			Name:     d.Player,
			Addr:     d.Addr,
			OnFor:    time.Since(d.ConnTime).Truncate(time.Second).String(),
			Commands: d.CmdCount,
			Mission:  d.Session.Engine.CurrentMission(),
			Credits:  d.Session.Engine.Credits(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"players": out})
}

// handleBackup writes a live backup of server state to the configured
// backup directory. The bolt snapshot is transactional, so players stay
// connected throughout.
func (ws *WebServer) handleBackup(w http.ResponseWriter, r *http.Request) {
	params := archive.Params{
		ContentDir: ws.game.Conf.ContentDir,
		BackupDir:  ws.game.Conf.BackupDir,
		GameName:   ws.game.Conf.Name,
	}
	if ws.game.Store != nil {
		params.BoltSnapshotFunc = ws.game.Store.Snapshot
		if names, err := ws.game.Store.AccountNames(); err == nil {
			params.PlayerCount = len(names)
		}
	}
	if ws.game.Ledger != nil {
		params.TelemetryPath = ws.game.Conf.TelemetryPath
		params.CheckpointFunc = ws.game.Ledger.Checkpoint
	}

	path, err := archive.Create(params)
	if err != nil {
		log.Printf("backup failed: %v", err)
		http.Error(w, `{"error":"backup failed"}`, http.StatusInternalServerError)
		return
	}
	log.Printf("backup written: %s", path)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"backup": path})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
	})
}
