package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"uwuchat/internal/bridge"
	"uwuchat/internal/core"
	"uwuchat/internal/httpapi"
	"uwuchat/internal/ws"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	apiBase := flag.String("api", "http://127.0.0.1:3000", "API base URL for subcommands")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	if RunCLI(flag.Args(), *apiBase) {
		return
	}

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg, *debug)
	log.Info().Str("version", Version).Str("addr", cfg.Addr()).Msg("starting server")
	cfg.LogConfig(log)

	st := core.NewState(log, core.Options{QueueDepth: cfg.SendQueueDepth})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case cfg.RedisURL != "":
		eng, err := bridge.NewRedis(ctx, cfg.RedisURL, st, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis bridge")
		}
		defer eng.Close()
		st.AttachEngine(eng)
	case cfg.NATSURL != "":
		eng, err := bridge.NewNATS(cfg.NATSURL, st, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats bridge")
		}
		defer eng.Close()
		st.AttachEngine(eng)
	}

	go st.Run(ctx)
	go core.RunIdleDetector(ctx, st, cfg.IdleCheckPeriod, cfg.IdleThreshold, log)
	go RunStats(ctx, st, cfg.StatsInterval, log)

	var tlsConfig *tls.Config
	if cfg.TLS {
		cert, fingerprint, err := generateTLSConfig(cfg.TLSValidity, cfg.TLSHostname)
		if err != nil {
			log.Fatal().Err(err).Msg("generate tls certificate")
		}
		tlsConfig = cert
		log.Info().Str("fingerprint", fingerprint).Msg("serving with self-signed certificate")
	}

	server := httpapi.New(st, log, httpapi.Options{
		PublicDir: cfg.PublicDir,
		KeepAlive: cfg.KeepAlive,
		WS: ws.Options{
			PingInterval:    cfg.PingInterval,
			MaxMessageBytes: int64(cfg.MaxMessageKB) << 10,
		},
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info().Msg("received interrupt, shutting down")
		cancel()
	}()

	log.Info().Str("addr", cfg.Addr()).Msg("listening")
	if err := server.Run(ctx, cfg.Addr(), tlsConfig); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

// newLogger builds the process logger from the configured level and format.
// Dev builds default to debug so local runs stay chatty; -debug forces it.
func newLogger(cfg *Config, debug bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if debug || strings.Contains(Version, "dev") {
		level = zerolog.DebugLevel
	}

	var out zerolog.Logger
	if cfg.LogFormat == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		out = zerolog.New(os.Stderr)
	}
	return out.Level(level).With().Timestamp().Logger()
}
