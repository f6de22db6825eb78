package pubfile

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// Server serves world-readable files out of per-host directories under its
// root, one goroutine per connection, with every read bounded by the
// readiness waiter.
type Server struct {
	Net            string
	Address        string
	Root           string
	ReadTimeoutSec int

	mimes    *MimeTypes
	stats    *ServerStats
	running  *atomic.Bool
	listener net.Listener
}

func NewServer(config *Config) (*Server, error) {
	mimes, err := NewMimeTypes()
	if err != nil {
		return nil, err
	}
	return &Server{
		Net:            config.Server.Net,
		Address:        config.Server.Address,
		Root:           config.Server.RootDir,
		ReadTimeoutSec: config.Server.ReadTimeoutSec,
		mimes:          mimes,
		stats:          NewServerStats(),
		running:        atomic.NewBool(false),
	}, nil
}

func (s *Server) Stats() *ServerStats { return s.stats }

// Listen binds the configured address and starts accepting connections in
// the background.
func (s *Server) Listen() error {
	listener, err := net.Listen(s.Net, s.Address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.running.Store(true)
	log.Info().Msgf("listening on %s", listener.Addr())
	go s.handleAccept(listener)
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	s.running.Store(false)
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleAccept(listener net.Listener) {
	for s.running.Load() {
		conn, err := listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			log.Error().Msgf("got error while accept connection: %+v", err)
			continue
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			log.Error().Msgf("can't cast net.Conn to *net.TCPConn")
			conn.Close()
			continue
		}
		go s.handleConnection(tcpConn)
	}
}

func (s *Server) handleConnection(tcpConn *net.TCPConn) {
	s.stats.TotalConnections.Inc()
	s.stats.ActiveConnections.Inc()
	defer s.stats.ActiveConnections.Dec()

	c, err := NewConn(tcpConn, s.ReadTimeoutSec)
	if err != nil {
		log.Error().Msgf("can't wrap connection: %+v", err)
		tcpConn.Close()
		return
	}
	defer c.Close()

	s.Serve(c)
	s.stats.BytesSent.Add(c.BytesSent())
}

// ServeStdio handles a single connection arriving on stdin/stdout, for use
// under an inetd-style supervisor.
func (s *Server) ServeStdio(remote string) {
	c := NewFileConn(os.Stdin, os.Stdout, remote, s.ReadTimeoutSec)
	s.Serve(c)
}

// Serve processes requests on one connection until the client goes away, the
// read deadline fires, or an error response closes it.
func (s *Server) Serve(c *Conn) {
	for {
		req, err := ReadRequest(c)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				s.stats.ReadTimeouts.Inc()
				c.Logger().Debug().Msg("read timed out, dropping connection")
				return
			}
			// The protocol is unknown at this point; error reporting is
			// best-effort.
			_ = Barf(c, HTTP10, false, true, err)
			return
		}

		s.stats.RequestsServed.Inc()
		if err := s.serveRequest(c, req); err != nil {
			_ = Barf(c, req.Protocol, true, req.Method == MethodGet, err)
			return
		}
	}
}

func (s *Server) serveRequest(c *Conn, req *Request) error {
	// The request may not have included a host, but we need one to generate
	// a file path. HTTP/1.0 tolerates its absence with the simulated host
	// "0"; HTTP/1.1 requests must include one, one way or another.
	host := req.Host
	if host == nil {
		if req.Protocol == HTTP11 {
			return ErrBadRequest
		}
		host = []byte("0")
	} else {
		host = normalizeHost(host)
	}

	path, err := unescape(req.Path)
	if err != nil {
		return err
	}

	rel := make([]byte, 0, 2+len(host)+1+len(path))
	rel = append(rel, "./"...)
	rel = append(rel, host...)
	rel = append(rel, '/')
	rel = append(rel, path...)
	rel = sanitize(rel)

	filePath := filepath.Join(s.Root, string(rel))
	contentType := s.mimes.FromPath(rel)

	resource, err := s.openResource(c, filePath, "")
	if err != nil {
		return err
	}

	encoding := EncodingIdentity
	if req.AcceptGzip {
		// See if there's *also* a gzipped alternate with accessible
		// permissions. It must be at least as recent as the primary, or it's
		// assumed to be stale clutter and ignored.
		if alt, altErr := s.openResource(c, filePath+".gz", "gzipped"); altErr == nil {
			if !alt.Mtime.Before(resource.Mtime) {
				resource.File.Close()
				resource = alt
				encoding = EncodingGzip
			} else {
				alt.File.Close()
			}
		}
	}
	defer resource.File.Close()

	return Send(c, req, time.Now(), encoding, contentType, resource)
}

func (s *Server) openResource(c *Conn, path, context string) (*OpenFile, error) {
	resource, err := SafeOpen(path)
	event := c.Logger().Debug().Str("path", path)
	if context != "" {
		event = event.Str("context", context)
	}
	if err != nil {
		event.Msgf("read: %v", err)
		return nil, err
	}
	event.Msg("read: success")
	return resource, nil
}

// normalizeHost prepares a client-provided host for use as a directory name:
// downcased, with the port stripped off.
func normalizeHost(host []byte) []byte {
	for i, c := range host {
		if c == ':' {
			return host[:i]
		}
		if c >= 'A' && c <= 'Z' {
			host[i] = c + ('a' - 'A')
		}
	}
	return host
}
