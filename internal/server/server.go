// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package server implements the TCP accept loop and per-connection read
// loop that wire the decoding core (internal/pipeline) to a real
// net.Listener: idle timeouts, graceful shutdown with a grace window, and
// the observable side effects (structured logs, metrics, optional binary
// capture) that sit outside the core's concern.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ffutop/tcpframe/internal/binlog"
	"github.com/ffutop/tcpframe/internal/config"
	"github.com/ffutop/tcpframe/internal/envelope"
	"github.com/ffutop/tcpframe/internal/logging"
	"github.com/ffutop/tcpframe/internal/metrics"
	"github.com/ffutop/tcpframe/internal/pipeline"
	"github.com/ffutop/tcpframe/internal/router"
	"github.com/ffutop/tcpframe/internal/wire/jsonstream"
	"github.com/ffutop/tcpframe/internal/wire/length"
	"github.com/ffutop/tcpframe/internal/wire/line"
	"github.com/ffutop/tcpframe/internal/wire/rtu"
)

// readBufSize is the chunk size handed to Pipeline.Feed per Read call.
// The framing regimes place no upper bound on a single read's usefulness,
// so this is sized for TCP throughput, not protocol correctness.
const readBufSize = 4096

// Server accepts connections on one TCP listener and runs each through
// its own Pipeline.
type Server struct {
	cfg     *config.Config
	logger  zerolog.Logger
	router  *router.Router
	capture *binlog.Sink

	listener net.Listener
	wg       sync.WaitGroup

	// ready is closed once listener is set, so a caller (chiefly tests
	// binding to port 0) can learn the assigned address without a sleep.
	ready chan struct{}

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// New constructs a Server. If cfg.Capture.Path is non-empty, it opens the
// binary capture sink eagerly so a misconfigured path fails fast at
// startup rather than silently dropping Raw-mode captures later.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: router.New(),
		conns:  make(map[net.Conn]struct{}),
		ready:  make(chan struct{}),
	}

	if cfg.Capture.Path != "" {
		binlogLog := logging.ForComponent(logger, "binlog")
		sink, err := binlog.Open(cfg.Capture.Path)
		if err != nil {
			binlogLog.Error().Err(err).Str("path", cfg.Capture.Path).Msg("failed to open capture sink")
			return nil, fmt.Errorf("server: opening capture sink: %w", err)
		}
		binlogLog.Info().Str("path", cfg.Capture.Path).Msg("capture sink open")
		s.capture = sink
	}

	return s, nil
}

// Addr blocks until the listener is bound, then returns its address. Used
// by callers (tests, chiefly) that start Run in a goroutine and need the
// actual port when cfg.TCP.Port is 0.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

// Run listens on cfg.TCP.Port and serves connections until ctx is
// cancelled, then waits up to cfg.TCP.ShutdownGrace for in-flight
// connections to finish before forcibly closing whatever remains.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.TCP.Port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", s.cfg.TCP.Port, err)
	}
	s.listener = listener
	close(s.ready)
	s.logger.Info().Int("port", s.cfg.TCP.Port).Str("framing", s.cfg.TCP.Framing).Msg("listening")

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	acceptErr := s.acceptLoop(ctx)

	s.wg.Wait()
	if s.capture != nil {
		s.capture.Close()
	}
	return acceptErr
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return s.shutdown()
			default:
				s.logger.Error().Err(err).Msg("accept failed")
				continue
			}
		}

		s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrackConn(conn)
			s.handleConnection(ctx, conn)
		}()
	}
}

// shutdown waits up to the configured grace window for connection
// goroutines to drain, then force-closes whatever net.Conn remain.
// Pending inbound buffers on a force-closed connection are dropped, never
// flushed downstream.
func (s *Server) shutdown() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.TCP.ShutdownGrace):
		s.forceCloseRemaining()
		return nil
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) forceCloseRemaining() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log := logging.ForConnection(s.logger, remote)
	log.Info().Msg("connected")
	metrics.RecordConnectionOpened(s.cfg.TCP.Framing)

	p := pipeline.New(
		s.cfg.TCP.Framing,
		s.cfg.TCP.MaxFrameLength,
		s.cfg.TCP.DetectWindow,
		s.cfg.TCP.RespondEnabled,
		s.router,
	)
	defer s.flushOnClose(log, p)

	idle := time.Duration(s.cfg.TCP.ReaderIdleSeconds) * time.Second
	buf := make([]byte, readBufSize)
	closeReason := "eof"

	for {
		select {
		case <-ctx.Done():
			closeReason = "shutdown"
			log.Info().Msg("disconnecting for shutdown")
			return
		default:
		}

		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(idle))
		}

		n, err := conn.Read(buf)
		if err != nil {
			closeReason = classifyReadError(err)
			if closeReason == "idle-timeout" {
				metrics.RecordIdleTimeout()
				log.Warn().Msg("idle timeout")
			} else if closeReason != "eof" {
				log.Warn().Err(err).Msg("read failed")
			} else {
				log.Info().Msg("disconnected")
			}
			metrics.RecordConnectionClosed(p.Mode(), closeReason)
			return
		}

		result := p.Feed(buf[:n])
		s.observe(log, p.Mode(), result)

		for _, out := range result.Outbound {
			if _, werr := conn.Write(out); werr != nil {
				log.Warn().Err(werr).Msg("write failed")
				metrics.RecordConnectionClosed(p.Mode(), "write-error")
				return
			}
		}

		if result.Fatal != nil {
			class := classifyDecodeError(result.Fatal)
			log.Warn().Err(result.Fatal).Str("class", class).Msg("fatal decode error, closing connection")
			metrics.RecordDecodeError(class)
			metrics.RecordConnectionClosed(p.Mode(), class)
			return
		}
	}
}

// flushOnClose reports a JSON value left mid-flight when the connection
// closes. The bytes are still discarded — there is no peer left to
// resend the rest of the value to — but the connection no longer goes
// silent about it.
func (s *Server) flushOnClose(log zerolog.Logger, p *pipeline.Pipeline) {
	pending, ok := p.Flush()
	if !ok {
		return
	}
	log.Warn().Int("bytes", len(pending)).Msg("connection closed with a partial JSON value pending")
}

// observe records metrics and, for the two framing modes the core never
// interprets (Raw and ModbusRtu), hands each emitted chunk/frame to its
// downstream observer: the capture sink for Raw, a structured hex log
// line for ModbusRtu.
func (s *Server) observe(log zerolog.Logger, mode string, result pipeline.Result) {
	for i := 0; i < len(result.Frames)+result.Dispatched; i++ {
		metrics.RecordFrameDecoded(mode)
	}

	switch mode {
	case config.FramingRaw:
		if s.capture == nil {
			return
		}
		for _, chunk := range result.Frames {
			if err := s.capture.Write(chunk); err != nil {
				log.Warn().Err(err).Msg("capture write failed")
			}
		}
	case config.FramingModbusRTU:
		for _, frame := range result.Frames {
			log.Debug().Str("frame", hex.EncodeToString(frame)).Msg("modbus rtu frame")
		}
	}
}

func classifyReadError(err error) string {
	if errors.Is(err, io.EOF) {
		return "eof"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "idle-timeout"
	}
	return "read-error"
}

// classifyDecodeError maps a Pipeline.Feed fatal error to the error
// taxonomy class (spec.md §7) used for metrics and logs.
func classifyDecodeError(err error) string {
	switch {
	case errors.Is(err, rtu.ErrFrameTooLong),
		errors.Is(err, length.ErrFrameTooLong),
		errors.Is(err, line.ErrFrameTooLong),
		errors.Is(err, jsonstream.ErrStreamTooLong):
		return "frame-too-long"
	case errors.Is(err, jsonstream.ErrMalformedJSON):
		return "stream-corruption"
	default:
		var parseErr *envelope.ParseError
		if errors.As(err, &parseErr) {
			return "stream-corruption"
		}
		return "internal-serialization"
	}
}
