package rsp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pawnlang/pawndbg/pkg/debug"
	"github.com/pawnlang/pawndbg/pkg/logging"
	"github.com/pawnlang/pawndbg/pkg/metrics"
)

// Options carries the server's collaborators; the zero value is usable.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Server is the single-client TCP transport of the remote stub. It owns
// the listener goroutine; the session it feeds couples packet dispatch to
// the halted VM thread.
type Server struct {
	port    int
	session *Session
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	stopping bool

	wg sync.WaitGroup
}

func NewServer(port int, session *Session, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Server{
		port:    port,
		session: session,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("pawndbg/rsp"),
	}
}

// Session returns the server's packet dispatcher.
func (s *Server) Session() *Session {
	return s.session
}

// Start binds the listening socket on all interfaces and spawns the accept
// loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("binding remote stub port %d: %w", s.port, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.InfoWithFields("remote stub listening", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener address, for tests using port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop tears the transport down: both sockets are closed, which unblocks
// any pending accept or read, and a parked VM thread is released.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopping = true
	if s.listener != nil {
		s.listener.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	s.session.Resume(debug.Running)
	s.wg.Wait()
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// acceptLoop hands each accepted client to a serve goroutine. At most one
// session is live: a new accept implicitly tears down the previous one.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	var serving sync.WaitGroup
	defer serving.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.isStopping() {
				s.logger.ErrorWithFields("accept failed, shutting down transport", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		s.metrics.IncSession()
		clientLog := s.logger.WithRequestID(uuid.NewString()).
			WithField("client", conn.RemoteAddr().String())
		clientLog.Info("remote client connected")

		serving.Add(1)
		go func(conn net.Conn, log *logging.Logger) {
			defer serving.Done()
			s.serve(conn, log)

			s.mu.Lock()
			current := s.conn == conn
			if current {
				s.conn = nil
			}
			s.mu.Unlock()
			conn.Close()

			// A vanished client must not leave the VM parked forever. A
			// replaced one hands its halt over to the new session instead.
			if current {
				s.session.Resume(debug.Running)
			}
			log.Info("remote client disconnected")
		}(conn, clientLog)
	}
}

// serve runs the read loop of one connection until it errors or the server
// stops.
func (s *Server) serve(conn net.Conn, log *logging.Logger) {
	framer := &Framer{}
	noAck := false
	outstanding := 0
	var lastPacket []byte
	var queue []string

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !s.isStopping() {
				log.DebugWithFields("read failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		res := framer.Feed(buf[:n])
		if outstanding -= res.Acks; outstanding < 0 {
			outstanding = 0
		}
		if len(res.Out) > 0 {
			if _, err := conn.Write(res.Out); err != nil {
				return
			}
		}
		// A nak asks for a retransmit of our previous packet.
		for i := 0; i < res.Naks && lastPacket != nil; i++ {
			if _, err := conn.Write(lastPacket); err != nil {
				return
			}
		}

		// Replies wait for the ack of their predecessor unless the ack
		// convention has been dropped.
		queue = append(queue, res.Packets...)
		for len(queue) > 0 && (noAck || outstanding == 0) {
			payload := queue[0]
			queue = queue[1:]
			s.metrics.IncPacket("in")
			_, span := s.tracer.Start(context.Background(), "rsp.packet",
				trace.WithAttributes(attribute.String("packet", firstByte(payload))))
			reply := s.session.HandlePacket(payload)
			span.End()

			out := EncodePacket(reply)
			lastPacket = out
			s.metrics.IncPacket("out")
			if _, err := conn.Write(out); err != nil {
				return
			}
			if !noAck {
				outstanding++
			}

			// The ack convention is dropped only after the OK for
			// QStartNoAckMode went out.
			if !noAck && payload == "QStartNoAckMode" {
				noAck = true
				framer.SetNoAckMode(true)
			}
		}
	}
}

func firstByte(payload string) string {
	if payload == "" {
		return ""
	}
	return payload[:1]
}
