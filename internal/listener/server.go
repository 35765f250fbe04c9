// Package listener accepts HTTP requests on every interface, logs the JSON
// body of each one and acknowledges it with 204 No Content.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/HanTheDev/payload-listener/internal/models"
	"github.com/HanTheDev/payload-listener/internal/render"
)

const (
	Port         = 8888
	IPv4Wildcard = "0.0.0.0"
	IPv6Wildcard = "::"
)

var ErrNoListeners = errors.New("no bound listeners")

// Recorder receives every observation after its response has been written.
type Recorder interface {
	Record(ctx context.Context, obs *models.Observation) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, obs *models.Observation) error

func (f RecorderFunc) Record(ctx context.Context, obs *models.Observation) error {
	return f(ctx, obs)
}

type Options struct {
	// Renderer formats parsed bodies. Nil means inspect with default depth.
	Renderer *render.Renderer
	// MaxBodyBytes rejects larger bodies with 413. Zero means no limit.
	MaxBodyBytes int64
	Recorders    []Recorder
}

type Server struct {
	logger       *log.Logger
	renderer     *render.Renderer
	maxBodyBytes int64
	recorders    []Recorder

	httpServer *http.Server

	mu        sync.Mutex
	listeners []net.Listener
}

func New(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	renderer := opts.Renderer
	if renderer == nil {
		// The default options always validate.
		renderer, _ = render.New(render.Options{Format: render.FormatInspect, Depth: render.DefaultDepth})
	}

	s := &Server{
		logger:       logger,
		renderer:     renderer,
		maxBodyBytes: opts.MaxBodyBytes,
		recorders:    opts.Recorders,
	}
	s.httpServer = &http.Server{
		Handler:  s.Handler(),
		ErrorLog: logger,
	}
	return s
}

// Bind listens on host:port for one address family. network is "tcp4" or
// "tcp6"; a "tcp6" wildcard does not also accept IPv4.
func (s *Server) Bind(ctx context.Context, network, host string, port int) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, network, net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("bind %s %s:%d: %w", network, host, port, err)
	}

	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	s.logger.Printf("server listening on %s:%d", host, port)
	return l, nil
}

// BindWildcards binds the IPv4 and then the IPv6 wildcard address on port.
// A single failed bind is logged and ignored unless requireAll is set; if
// neither bind succeeds an error is returned.
func (s *Server) BindWildcards(ctx context.Context, port int, requireAll bool) error {
	binds := []struct {
		network string
		host    string
	}{
		{"tcp4", IPv4Wildcard},
		{"tcp6", IPv6Wildcard},
	}

	var errs []error
	for _, b := range binds {
		if _, err := s.Bind(ctx, b.network, b.host, port); err != nil {
			s.logger.Printf("%v", err)
			errs = append(errs, err)
		}
	}

	switch {
	case len(errs) == len(binds):
		return errors.Join(errs...)
	case len(errs) > 0 && requireAll:
		return errs[0]
	}
	return nil
}

// Addrs returns the addresses of every bound listener.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// Serve accepts connections on every bound listener until Close is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	listeners := append([]net.Listener(nil), s.listeners...)
	s.mu.Unlock()

	if len(listeners) == 0 {
		return ErrNoListeners
	}

	var g errgroup.Group
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			if err := s.httpServer.Serve(l); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", l.Addr(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops accepting connections and drops the ones in flight.
func (s *Server) Close() error {
	err := s.httpServer.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		// Listeners handed to Serve are already closed by the http.Server.
		l.Close()
	}
	return err
}
