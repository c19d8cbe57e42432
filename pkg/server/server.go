package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hackmesh/termhack/pkg/game"
)

// Config holds the transport configuration.
type Config struct {
	Port        int
	IdleTimeout time.Duration
	MaxRetries  int
	WelcomeText string
	Cleartext   bool
	TLS         bool
	TLSPort     int
	TLSCert     string
	TLSKey      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        7370,
		IdleTimeout: 3600 * time.Second,
		MaxRetries:  3,
		WelcomeText: WelcomeText,
		Cleartext:   true,
	}
}

// WelcomeText greets unauthenticated connections.
const WelcomeText = "" +
	"  _____ _____ ____  __  __ _   _    _    ____ _  __\r\n" +
	" |_   _| ____|  _ \\|  \\/  | | | |  / \\  / ___| |/ /\r\n" +
	"   | | |  _| | |_) | |\\/| | |_| | / _ \\| |   | ' /\r\n" +
	"   | | | |___|  _ <| |  | |  _  |/ ___ \\ |___| . \\\r\n" +
	"   |_| |_____|_| \\_\\_|  |_|_| |_/_/   \\_\\____|_|\\_\\\r\n" +
	"\r\n" +
	"A safe place to learn how attacks actually work.\r\n" +
	"Commands: connect <name> <password>, create <name> <password>, WHO, QUIT\r\n"

// Server is the TCP game server.
type Server struct {
	Config      Config
	Game        *game.Game
	Conns       *ConnManager
	listener    net.Listener
	tlsListener net.Listener
	webServer   *WebServer
	stopContent func()
}

// NewServer creates a server around a loaded game.
func NewServer(g *game.Game, cfg Config) *Server {
	s := &Server{
		Config: cfg,
		Game:   g,
		Conns:  NewConnManager(),
	}
	if g.Metrics != nil {
		g.Metrics.SampleActions = func() int {
			total := 0
			for _, d := range s.Conns.AllDescriptors() {
				if d.Session != nil {
					total += d.Session.Actions.Len()
				}
			}
			return total
		}
	}
	return s
}

// Start brings up the configured listeners and blocks until they close.
func (s *Server) Start() error {
	if !s.Config.Cleartext && !s.Config.TLS {
		return fmt.Errorf("both cleartext and TLS listeners are disabled; nothing to listen on")
	}

	if s.Game.Conf.WatchContent {
		s.stopContent = s.Game.WatchContent()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if s.Config.Cleartext {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
			if err != nil {
				errCh <- fmt.Errorf("cleartext listener: %w", err)
				return
			}
			s.listener = ln
			log.Printf("Listening (cleartext) on port %d", s.Config.Port)
			s.acceptLoop(ln)
		}()
	}

	if s.Config.TLS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := tls.LoadX509KeyPair(s.Config.TLSCert, s.Config.TLSKey)
			if err != nil {
				errCh <- fmt.Errorf("TLS cert load: %w", err)
				return
			}
			tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
			ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", s.Config.TLSPort), tlsCfg)
			if err != nil {
				errCh <- fmt.Errorf("TLS listener: %w", err)
				return
			}
			s.tlsListener = ln
			log.Printf("Listening (TLS) on port %d", s.Config.TLSPort)
			s.acceptLoop(ln)
		}()
	}

	if s.Game.Conf.HTTPPort > 0 {
		s.webServer = NewWebServer(s.Game, s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.webServer.Start(); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	default:
	}

	wg.Wait()
	return nil
}

// acceptLoop accepts connections until the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes all active listeners and saves every live session.
func (s *Server) Stop() {
	if s.stopContent != nil {
		s.stopContent()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
	for _, d := range s.Conns.AllDescriptors() {
		s.logout(d)
		d.Close()
	}
}

// handleConnection manages one client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	d := NewDescriptor(s.Conns.NextID(), conn, s.Config.MaxRetries)
	s.Conns.Add(d)
	log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	defer func() {
		s.logout(d)
		s.Conns.Remove(d)
		d.Close()
		log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	d.Send(s.Config.WelcomeText)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for scanner.Scan() {
		if d.IsClosed() {
			return
		}
		if s.Config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.Config.IdleTimeout))
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			d.CmdCount++
			d.SendResult(s.Game.Dispatch(d.Session, line))
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login input.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	upper := strings.ToUpper(input)
	if upper == "QUIT" {
		d.Send("Goodbye.")
		d.Close()
		return
	}
	if upper == "WHO" {
		players := s.Conns.ConnectedPlayers()
		d.Send(fmt.Sprintf("%d player(s) online.", len(players)))
		return
	}

	command, user, password := ParseLogin(input)
	switch {
	case strings.HasPrefix(command, "co"):
		s.handleLogin(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send("Commands: connect <name> <password>, create <name> <password>, WHO, QUIT")
	}
}

// handleLogin authenticates against the account store and attaches a
// session, restored from the player's save when one exists.
func (s *Server) handleLogin(d *Descriptor, user, password string) {
	if user == "" || password == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	if err := CheckPassword(s.Game.Store, user, password); err != nil {
		d.Send("Either that player does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	if !s.Conns.Login(d, user) {
		d.Send("That player is already connected.")
		return
	}
	s.attachSession(d, user)

	log.Printf("[%d] Player %s connected from %s", d.ID, user, d.Addr)
	d.Send(fmt.Sprintf("Welcome back, %s.", user))
	d.SendResult(s.Game.Dispatch(d.Session, "missions"))
}

// handleCreate registers a new account and logs it in.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}
	if err := ValidateName(user); err != nil {
		d.Send(err.Error())
		return
	}

	if err := CreateAccount(s.Game.Store, user, password); err != nil {
		if errors.Is(err, ErrNameTaken) {
			d.Send("That name is already taken.")
		} else {
			log.Printf("[%d] create %s: %v", d.ID, user, err)
			d.Send("Account creation failed. Try again.")
		}
		return
	}

	if !s.Conns.Login(d, user) {
		d.Send("That player is already connected.")
		return
	}
	s.attachSession(d, user)

	log.Printf("[%d] New player %s created from %s", d.ID, user, d.Addr)
	d.Send(fmt.Sprintf("Welcome to the mesh, %s. Type \"help\" to get your bearings.", user))
	d.SendResult(s.Game.Dispatch(d.Session, "objectives"))
}

// attachSession builds or restores the player's game session and wires
// the descriptor into its event bus.
func (s *Server) attachSession(d *Descriptor, player string) {
	var sess *game.Session
	if s.Game.Store != nil {
		if save, err := s.Game.Store.LoadSession(player); err != nil {
			log.Printf("[%d] load session %s: %v", d.ID, player, err)
		} else if save != nil {
			sess = s.Game.RestoreSession(player, save)
		}
	}
	if sess == nil {
		sess = s.Game.NewSession(player)
	}
	d.Session = sess
	d.attachAnnouncer(s.Game, sess)
	if s.Game.Metrics != nil {
		s.Game.Metrics.PlayerConnected(1)
	}
}

// logout saves and tears down the descriptor's session, if any.
func (s *Server) logout(d *Descriptor) {
	if d.Session == nil {
		return
	}
	sess := d.Session
	d.Session = nil
	if s.Game.Store != nil {
		if err := s.Game.Store.SaveSession(sess.Player, sess.Save()); err != nil {
			log.Printf("[%d] save session %s: %v", d.ID, sess.Player, err)
		}
	}
	sess.Close()
	if s.Game.Metrics != nil {
		s.Game.Metrics.PlayerConnected(-1)
	}
	log.Printf("[%d] Player %s logged out", d.ID, sess.Player)
}

// ParseLogin splits a pre-login line into command, name and password.
// Quoted names allow spaces: connect "Agent Smith" hunter2
func ParseLogin(input string) (command, user, password string) {
	input = strings.TrimSpace(input)
	fields := splitLogin(input)
	if len(fields) == 0 {
		return "", "", ""
	}
	command = strings.ToLower(fields[0])
	if len(fields) > 1 {
		user = fields[1]
	}
	if len(fields) > 2 {
		password = fields[2]
	}
	return command, user, password
}

func splitLogin(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return fields
}
