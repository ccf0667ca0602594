package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/genc-murat/weatherstation/internal/core/models"
	"github.com/genc-murat/weatherstation/internal/core/ports"
	"github.com/genc-murat/weatherstation/internal/metrics"
	"github.com/genc-murat/weatherstation/pkg/httpwire"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

type ServerConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int
}

// Server answers each connection with one JSON view of the store and
// closes it. It only ever reads the store through Snapshot.
type Server struct {
	store   ports.SnapshotReader
	config  ServerConfig
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	routes  map[string]route

	mu       sync.Mutex
	listener net.Listener

	// Shutdown coordination
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	activeConns  sync.Map
}

type route struct {
	name  string
	view  func(snap models.Snapshot) any
	empty []byte
}

var defaultRoute = route{
	name: "/",
	view: func(snap models.Snapshot) any {
		if snap.Current == nil {
			return struct{}{}
		}
		return snap.Current
	},
	empty: []byte("{}"),
}

func NewServer(store ports.SnapshotReader, config ServerConfig, log logrus.FieldLogger, m *metrics.Metrics) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		store:    store,
		config:   config,
		log:      log.WithField("component", "server"),
		metrics:  m,
		routes:   make(map[string]route),
		shutdown: make(chan struct{}),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.register("/LastHour", func(snap models.Snapshot) any { return nonNil(snap.HourBucket) })
	s.register("/LastDay", func(snap models.Snapshot) any { return nonNil(snap.HourlyHistory) })
	s.register("/LastMonth", func(snap models.Snapshot) any { return nonNil(snap.DailyHistory) })
}

func (s *Server) register(path string, view func(models.Snapshot) any) {
	s.routes[strings.ToLower(path)] = route{name: path, view: view, empty: []byte("[]")}
}

// Start listens on address and serves until Shutdown.
func (s *Server) Start(address string) error {
	if err := s.Listen(address); err != nil {
		return err
	}
	return s.Serve()
}

func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.WithField("address", listener.Addr().String()).Info("Server listening")
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on the listener opened by Listen and handles
// each one in its own goroutine.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	var tempDelay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return ErrServerClosed
			default:
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.log.WithError(err).Warnf("Accept error, retrying in %v", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			s.log.WithError(err).Error("Error accepting connection")
			continue
		}
		tempDelay = 0

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id := uuid.NewString()
	s.activeConns.Store(id, conn)
	defer s.activeConns.Delete(id)

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	log := s.log.WithFields(logrus.Fields{
		"conn_id": id,
		"remote":  conn.RemoteAddr().String(),
	})

	if s.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
	req, err := httpwire.NewReader(conn, s.config.MaxRequestSize).Read()
	if err != nil && !(isTimeout(err) && req.Line != "") {
		s.metrics.ConnError()
		log.WithError(err).Debug("Dropping connection, request unreadable")
		return
	}
	if req.Truncated {
		log.Debug("Request exceeded size limit, truncated")
	}

	rt, body := s.respond(req.Path)

	if s.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if err := httpwire.NewWriter(conn).Write(body); err != nil {
		s.metrics.ConnError()
		log.WithError(err).Debug("Failed to write response")
		return
	}

	s.metrics.Query(rt.name)
	log.WithFields(logrus.Fields{
		"path":  req.Path,
		"route": rt.name,
		"bytes": len(body),
	}).Debug("Served request")
}

// respond picks the route for path and encodes its view. The snapshot is
// copied out of the store before encoding.
func (s *Server) respond(path string) (route, []byte) {
	rt, ok := s.routes[strings.ToLower(path)]
	if !ok {
		rt = defaultRoute
	}

	body, err := json.Marshal(rt.view(s.store.Snapshot()))
	if err != nil {
		s.log.WithError(err).WithField("route", rt.name).Error("Failed to encode view")
		return rt, rt.empty
	}
	return rt, body
}

// Shutdown stops accepting, waits for in-flight connections and closes
// whatever is still open when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.log.WithError(err).Warn("Error closing listener")
			}
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.activeConns.Range(func(_, v any) bool {
			v.(net.Conn).Close()
			return true
		})
		<-done
		return ctx.Err()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func nonNil(samples []models.Sample) []models.Sample {
	if samples == nil {
		return []models.Sample{}
	}
	return samples
}
