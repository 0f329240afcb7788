// Package httpapi is the HTTP surface of the chat server: the websocket
// route, a read-only SSE feed of the group room, health and state
// endpoints, Prometheus metrics and optional static file serving.
package httpapi

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"uwuchat/internal/core"
	"uwuchat/internal/protocol"
	"uwuchat/internal/ws"
)

// DefaultKeepAlive is the SSE comment cadence keeping intermediaries from
// cutting an otherwise silent stream.
const DefaultKeepAlive = 10 * time.Second

// placeholderBody answers plain HTTP requests when no static directory is
// configured.
const placeholderBody = "<The HTTP response is useless>"

// Options configures the HTTP surface.
type Options struct {
	// PublicDir serves static files from disk when set. Without it, every
	// unmatched route answers with a fixed placeholder body.
	PublicDir string
	// KeepAlive is the SSE keep-alive comment cadence.
	KeepAlive time.Duration
	// WS tunes the websocket transport.
	WS ws.Options
}

// Server is the Echo application.
type Server struct {
	echo      *echo.Echo
	state     *core.State
	log       zerolog.Logger
	publicDir string
	keepAlive time.Duration
}

// New constructs an Echo app with websocket, SSE and REST routes.
func New(state *core.State, log zerolog.Logger, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}

	s := &Server{
		echo:      e,
		state:     state,
		log:       log.With().Str("component", "http").Logger(),
		publicDir: opts.PublicDir,
		keepAlive: opts.KeepAlive,
	}
	s.registerRoutes(opts.WS)
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes(wsOpts ws.Options) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/sse", s.handleEvents)
	ws.NewHandler(s.state, s.log, wsOpts).Register(s.echo)

	if s.publicDir != "" {
		s.echo.Static("/", s.publicDir)
		return
	}
	s.echo.RouteNotFound("/*", func(c echo.Context) error {
		return c.HTML(http.StatusOK, placeholderBody)
	})
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
// A non-nil tlsConfig switches the listener to HTTPS.
func (s *Server) Run(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = s.echo.StartServer(&http.Server{Addr: addr, TLSConfig: tlsConfig})
		} else {
			err = s.echo.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.state.UserCount(),
	})
}

type stateUser struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type stateResponse struct {
	Clients int         `json:"clients"`
	Users   []stateUser `json:"users"`
}

func (s *Server) handleState(c echo.Context) error {
	roster := s.state.Roster()
	users := make([]stateUser, len(roster))
	for i, entry := range roster {
		users[i] = stateUser{Name: string(entry.Name), Status: entry.Status.String()}
	}
	return c.JSON(http.StatusOK, stateResponse{
		Clients: len(users),
		Users:   users,
	})
}

// handleEvents streams the group room over SSE. The listener gets every
// frame published to the group, base64 encoded, but cannot send and never
// appears in the roster. Names are held to the same rules as websocket
// users so a listener cannot shadow someone's identity.
func (s *Server) handleEvents(c echo.Context) error {
	name := c.QueryParam("name")
	if err := protocol.ValidateName(name); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess, err := s.state.OpenListener(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer s.state.Close(sess)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(res, ": welcome\n\n"); err != nil {
		return nil
	}
	res.Flush()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case frame := <-sess.Frames():
			if _, err := fmt.Fprintf(res, "data: %s\n\n", base64.StdEncoding.EncodeToString(frame)); err != nil {
				return nil
			}
			res.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
