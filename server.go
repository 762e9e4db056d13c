package smtpd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidmail/smtpd/lineio"
	"github.com/corvidmail/smtpd/proxyproto"
)

// Server listens on one or more addresses and serves the SMTP/LMTP command
// state machine described by its Config (§4, §6 External Interfaces).
type Server struct {
	config *Config

	mu        sync.Mutex
	listeners []net.Listener

	connMu      sync.Mutex
	connections map[*Session]struct{}
	connCount   atomic.Int64

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownWg sync.WaitGroup
	closed     atomic.Bool
}

// NewServer wraps a Config in a Server, applying any zero-value defaults.
func NewServer(config *Config) (*Server, error) {
	if config.Hostname == "" {
		return nil, errors.New("smtpd: hostname is required")
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Minute
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Minute
	}
	if config.DataTimeout == 0 {
		config.DataTimeout = 10 * time.Minute
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.MaxLineLength == 0 {
		config.MaxLineLength = RecommendedLineLength
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:      config,
		connections: make(map[*Session]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func (s *Server) trackListener(l net.Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// ListenAndServe starts the server on Config.Addr and, if set, Config.UnixAddr.
func (s *Server) ListenAndServe() error {
	return s.listenAndServe(s.config.ImplicitTLS)
}

// ListenAndServeTLS starts the server with implicit TLS (SMTPS) on the TCP
// listener; STARTTLS is not offered on a connection accepted this way.
func (s *Server) ListenAndServeTLS() error {
	return s.listenAndServe(true)
}

func (s *Server) listenAndServe(implicitTLS bool) error {
	var listeners []net.Listener

	if s.config.Addr != "" {
		l, err := net.Listen("tcp", s.config.Addr)
		if err != nil {
			return fmt.Errorf("smtpd: failed to listen: %w", err)
		}
		if implicitTLS {
			if s.config.TLSConfig == nil {
				_ = l.Close()
				return errors.New("smtpd: TLS config required for implicit TLS")
			}
			l = tls.NewListener(l, s.config.TLSConfig)
		}
		listeners = append(listeners, l)
	}
	if s.config.UnixAddr != "" {
		l, err := net.Listen("unix", s.config.UnixAddr)
		if err != nil {
			return fmt.Errorf("smtpd: failed to listen on unix socket: %w", err)
		}
		listeners = append(listeners, l)
	}
	if len(listeners) == 0 {
		return errors.New("smtpd: no listen address configured")
	}

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		l := l
		s.trackListener(l)
		go func() { errCh <- s.Serve(l) }()
	}
	return <-errCh
}

// Serve accepts connections on listener until it is closed or Shutdown/Close
// is called.
func (s *Server) Serve(listener net.Listener) error {
	s.config.Logger.Info("smtpd server started",
		slog.String("addr", listener.Addr().String()),
		slog.String("hostname", s.config.Hostname),
		slog.Bool("lmtp", s.config.LMTP),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			s.config.Logger.Error("accept error", slog.Any("error", err))
			continue
		}

		if s.config.MaxConnections > 0 && s.connCount.Load() >= int64(s.config.MaxConnections) {
			s.config.Logger.Warn("connection limit reached", slog.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		s.shutdownWg.Add(1)
		go s.handleConnection(conn)
	}
}

// Shutdown stops accepting connections, notifies connected clients, and
// waits for in-flight connections to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.cancel()
	s.closeListeners()
	s.sendShutdownResponse()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.connMu.Lock()
		for conn := range s.connections {
			_ = conn.Close()
		}
		s.connMu.Unlock()
		return ctx.Err()
	}
}

// Close immediately closes the server and all active connections.
func (s *Server) Close() error {
	s.closed.Store(true)
	s.cancel()
	s.closeListeners()
	s.sendShutdownResponse()

	s.connMu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	return nil
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		_ = l.Close()
	}
}

func (s *Server) sendShutdownResponse() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for conn := range s.connections {
		_ = conn.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		resp := Response{Code: CodeServiceNotAvail, Message: fmt.Sprintf("%s Service shutting down [%s]", s.config.Hostname, conn.Trace.ID)}
		_, _ = conn.writer.WriteString(resp.String() + "\r\n")
		_ = conn.writer.Flush()
		_ = conn.conn.Close()
	}
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer s.shutdownWg.Done()

	limits := Limits{
		MaxMessageSize: s.config.MaxMessageSize,
		MaxRecipients:  s.config.MaxRecipients,
		MaxCommands:    s.config.MaxCommands,
		MaxErrors:      s.config.MaxErrors,
		IdleTimeout:    s.config.IdleTimeout,
		CommandTimeout: s.config.ReadTimeout,
		DataTimeout:    s.config.DataTimeout,
	}

	bufSize := s.config.MaxLineLength
	if bufSize <= 0 {
		bufSize = RecommendedLineLength
	}
	conn := NewSession(s.ctx, netConn, s.config.Hostname, limits, bufSize)
	conn.setLMTP(s.config.LMTP)

	if tlsConn, ok := netConn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			_ = netConn.Close()
			return
		}
		state := tlsConn.ConnectionState()
		conn.mu.Lock()
		conn.TLS = TLSInfo{
			Active:             true,
			Version:            state.Version,
			CipherSuite:        state.CipherSuite,
			ServerName:         state.ServerName,
			PeerCertificates:   state.PeerCertificates,
			NegotiatedProtocol: state.NegotiatedProtocol,
		}
		conn.mu.Unlock()
	}

	s.connMu.Lock()
	s.connections[conn] = struct{}{}
	s.connMu.Unlock()
	s.connCount.Add(1)

	defer func() {
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
		s.connCount.Add(-1)
		_ = conn.Close()

		if s.config.Callbacks != nil && s.config.Callbacks.OnDisconnect != nil {
			s.config.Callbacks.OnDisconnect(conn.Context(), conn)
		}
	}()

	logger := s.config.Logger.With(
		slog.String("conn_id", conn.Trace.ID),
		slog.String("remote", conn.RemoteAddr().String()),
	)
	logger.Info("client connected")

	if s.config.ProxyProtocolTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ProxyProtocolTimeout))
		info, err := proxyproto.Parse(conn.reader)
		if err != nil || !info.Valid() {
			logger.Warn("invalid PROXY protocol header", slog.Any("error", err))
			return
		}
		_ = netConn.SetReadDeadline(time.Time{})

		conn.Proxy = info
		if info.SrcAddr != nil {
			conn.Trace.RemoteAddr = net.JoinHostPort(info.SrcAddr.String(), strconv.Itoa(info.SrcPort))
		}

		if s.config.Callbacks != nil && s.config.Callbacks.OnProxy != nil {
			if err := s.config.Callbacks.OnProxy(conn.Context(), conn, info); err != nil {
				logger.Warn("connection rejected by proxy hook", slog.Any("error", err))
				return
			}
		}
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnConnect != nil {
		if err := s.config.Callbacks.OnConnect(conn.Context(), conn); err != nil {
			logger.Warn("connection rejected", slog.Any("error", err))
			s.writeResponse(conn, Response{Code: CodeTransactionFail, Message: "Connection rejected"})
			return
		}
	}

	greeting := fmt.Sprintf("%s ESMTP ready [%s]", s.config.Hostname, conn.Trace.ID)
	if s.config.LMTP {
		greeting = fmt.Sprintf("%s LMTP ready [%s]", s.config.Hostname, conn.Trace.ID)
	}
	s.writeResponse(conn, Response{Code: CodeServiceReady, Message: greeting})

	s.commandLoop(conn, logger)

	logger.Info("client disconnected",
		slog.Int("commands", conn.Trace.CommandCount),
		slog.Int("errors", conn.Trace.ErrorCount),
		slog.Int("transactions", conn.Trace.TransactionCount),
	)
}

func (s *Server) commandLoop(conn *Session, logger *slog.Logger) {
	reader := conn.reader

	for {
		select {
		case <-conn.Context().Done():
			return
		default:
		}

		// STARTTLS replaces conn.reader with one over the TLS stream.
		reader = conn.reader

		if err := conn.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return
		}

		line, err := lineio.ReadLine(reader, s.config.MaxLineLength, false)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.writeResponse(conn, Response{Code: CodeServiceNotAvail, Message: "Timeout waiting for command"})
				return
			}
			if errors.Is(err, lineio.ErrLineTooLong) {
				s.writeResponse(conn, Response{Code: CodeSyntaxError, Message: "Line too long"})
				conn.RecordError()
				continue
			}
			if errors.Is(err, lineio.ErrBadLineEnding) {
				s.writeResponse(conn, Response{Code: CodeSyntaxError, Message: "Line must be terminated with CRLF"})
				conn.RecordError()
				continue
			}
			logger.Error("read error", slog.Any("error", err))
			return
		}

		conn.UpdateActivity()

		if conn.Limits.MaxCommands > 0 && conn.Trace.CommandCount > conn.Limits.MaxCommands {
			s.writeResponse(conn, Response{Code: CodeServiceNotAvail, Message: "Too many commands"})
			return
		}
		if conn.Limits.MaxErrors > 0 && conn.Trace.ErrorCount >= conn.Limits.MaxErrors {
			s.writeResponse(conn, Response{Code: CodeServiceNotAvail, Message: "Too many errors"})
			return
		}

		cmd, args, err := parseCommand(line)
		if err != nil {
			if s.config.Callbacks != nil && s.config.Callbacks.OnUnknownCommand != nil {
				verb, _, _ := strings.Cut(line, " ")
				if resp := s.config.Callbacks.OnUnknownCommand(conn.Context(), conn, verb, args); resp != nil {
					s.writeResponse(conn, *resp)
					continue
				}
			}
			s.writeResponse(conn, Response{Code: CodeSyntaxError, Message: "Command unrecognized"})
			conn.RecordError()
			continue
		}

		logger.Debug("command received", slog.Int("cmd", int(cmd)), slog.String("args", args))

		response := s.dispatch(conn, cmd, args, reader, logger)
		if response != nil {
			s.writeResponse(conn, *response)
		}

		if conn.State() == StateQuit {
			return
		}
	}
}

func (s *Server) writeResponse(conn *Session, resp Response) {
	if err := conn.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return
	}
	if _, err := conn.writer.WriteString(resp.String() + "\r\n"); err != nil {
		conn.RecordError()
		return
	}
	_ = conn.writer.Flush()
}

func (s *Server) writeMultilineResponse(conn *Session, code SMTPCode, lines []string) {
	if err := conn.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return
	}
	for i, line := range lines {
		sep := byte('-')
		if i == len(lines)-1 {
			sep = ' '
		}
		formatted := fmt.Sprintf("%d%c%s\r\n", code, sep, line)
		if _, err := conn.writer.WriteString(formatted); err != nil {
			conn.RecordError()
			return
		}
	}
	_ = conn.writer.Flush()
}
