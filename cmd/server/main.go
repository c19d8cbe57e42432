package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackmesh/termhack/pkg/boltstore"
	"github.com/hackmesh/termhack/pkg/game"
	"github.com/hackmesh/termhack/pkg/server"
	"github.com/hackmesh/termhack/pkg/telemetry"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("TERMHACK_CONF", ""), "Path to game config file (env: TERMHACK_CONF)")
	contentDir := flag.String("content", envDefault("TERMHACK_CONTENT", ""), "Path to content directory, overrides config (env: TERMHACK_CONTENT)")
	boltPath := flag.String("bolt", envDefault("TERMHACK_BOLT", ""), "Path to bbolt save database, overrides config (env: TERMHACK_BOLT)")
	telemetryPath := flag.String("telemetry", envDefault("TERMHACK_TELEMETRY", ""), "Path to SQLite telemetry database, overrides config (env: TERMHACK_TELEMETRY)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: TERMHACK_PORT)")
	tlsCert := flag.String("tls-cert", envDefault("TERMHACK_TLS_CERT", ""), "Path to TLS certificate file (env: TERMHACK_TLS_CERT)")
	tlsKey := flag.String("tls-key", envDefault("TERMHACK_TLS_KEY", ""), "Path to TLS private key file (env: TERMHACK_TLS_KEY)")
	tlsPort := flag.String("tls-port", envDefault("TERMHACK_TLS_PORT", ""), "TLS listen port (env: TERMHACK_TLS_PORT)")
	genSecret := flag.Bool("gen-jwt-secret", false, "Print a random jwt_secret value and exit")
	mkAdmin := flag.String("mkadmin", envDefault("TERMHACK_MKADMIN", ""), "Create an admin account as name:password and exit (env: TERMHACK_MKADMIN)")
	flag.Parse()

	if *genSecret {
		fmt.Println(server.GenerateJWTSecret())
		return
	}

	conf := game.DefaultConf()
	if *confFile != "" {
		var err error
		conf, err = game.LoadConf(*confFile)
		if err != nil {
			log.Fatalf("Config: %v", err)
		}
	}
	if *contentDir != "" {
		conf.ContentDir = *contentDir
	}
	if *boltPath != "" {
		conf.BoltPath = *boltPath
	}
	if *telemetryPath != "" {
		conf.TelemetryPath = *telemetryPath
	}
	if *port == 0 {
		if envPort := os.Getenv("TERMHACK_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		conf.Port = *port
	}

	content, err := game.LoadContent(conf.ContentDir)
	if err != nil {
		log.Fatalf("Content: %v", err)
	}
	if err := game.CheckContent(content.World, content.Missions, content.Mail); err != nil {
		log.Fatalf("Content check: %v", err)
	}
	log.Printf("Content: %d hosts, %d missions loaded from %s",
		content.World.HostCount(), len(content.Missions.All()), conf.ContentDir)

	g := game.New(conf, content)

	if conf.BoltPath != "" {
		store, err := boltstore.Open(conf.BoltPath)
		if err != nil {
			log.Fatalf("Save store: %v", err)
		}
		defer store.Close()
		g.Store = store
		log.Printf("Save store: %s", store.Path())
	}

	if *mkAdmin != "" {
		makeAdmin(g.Store, *mkAdmin)
		return
	}

	if conf.TelemetryPath != "" {
		ledger, err := telemetry.Open(conf.TelemetryPath)
		if err != nil {
			log.Fatalf("Telemetry: %v", err)
		}
		defer ledger.Close()
		g.Ledger = ledger
		log.Printf("Telemetry ledger: %s", conf.TelemetryPath)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	g.Metrics = game.NewMetrics(reg, time.Now())

	srvCfg := server.DefaultConfig()
	srvCfg.Port = conf.Port
	if *tlsCert != "" && *tlsKey != "" {
		srvCfg.TLS = true
		srvCfg.TLSCert = *tlsCert
		srvCfg.TLSKey = *tlsKey
		srvCfg.TLSPort = conf.Port + 1
		if *tlsPort != "" {
			if p, err := strconv.Atoi(*tlsPort); err == nil {
				srvCfg.TLSPort = p
			}
		}
	}

	srv := server.NewServer(g, srvCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		srv.Stop()
	}()

	log.Printf("Starting %s", conf.Name)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server: %v", err)
	}
	log.Printf("Shutdown complete")
}

// makeAdmin creates (or promotes) an admin account from a name:password
// pair.
func makeAdmin(store *boltstore.Store, pair string) {
	if store == nil {
		log.Fatal("mkadmin requires a bolt save database")
	}
	name, password, ok := splitPair(pair)
	if !ok {
		log.Fatal("mkadmin expects name:password")
	}
	if err := server.ValidateName(name); err != nil {
		log.Fatalf("mkadmin: %v", err)
	}
	if err := server.CreateAccount(store, name, password); err != nil && err != server.ErrNameTaken {
		log.Fatalf("mkadmin: %v", err)
	}
	a, err := store.GetAccount(name)
	if err != nil || a == nil {
		log.Fatalf("mkadmin: load account: %v", err)
	}
	a.Admin = true
	if err := store.SaveAccount(a); err != nil {
		log.Fatalf("mkadmin: %v", err)
	}
	log.Printf("Admin account %s ready", name)
}

func splitPair(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], s[:i] != "" && s[i+1:] != ""
		}
	}
	return "", "", false
}
