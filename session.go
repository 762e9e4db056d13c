package smtpd

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/corvidmail/smtpd/proxyproto"
)

// State is the connection's position in the command state machine (§4.4).
type State int

const (
	StatePreGreeting State = iota
	StateGreeted
	StateMail
	StateRcpt
	StateData
	StateQuit
)

func (s State) String() string {
	switch s {
	case StatePreGreeting:
		return "PRE_GREETING"
	case StateGreeted:
		return "GREETED"
	case StateMail:
		return "MAIL_STARTED"
	case StateRcpt:
		return "RCPT_STARTED"
	case StateData:
		return "DATA_BODY"
	case StateQuit:
		return "QUITTING"
	default:
		return "UNKNOWN"
	}
}

// TLSInfo describes the TLS state of a Session.
type TLSInfo struct {
	Active             bool
	Version            uint16
	CipherSuite        uint16
	ServerName         string
	PeerCertificates   []*x509.Certificate
	NegotiatedProtocol string
}

// AuthInfo describes the authentication state of a Session.
type AuthInfo struct {
	Authenticated   bool
	Mechanism       string
	Identity        string
	AuthenticatedAt time.Time
}

// Trace holds per-connection bookkeeping used for logging and Received headers.
type Trace struct {
	ID               string
	RemoteAddr       string
	LocalAddr        string
	ConnectedAt      time.Time
	ClientHostname   string
	ReverseDNS       string
	CommandCount     int
	TransactionCount int
	BytesRead        int64
	BytesWritten     int64
	LastActivity     time.Time
	ErrorCount       int
}

// Limits bounds the resources a single Session may consume (§5).
type Limits struct {
	MaxMessageSize int64
	MaxRecipients  int
	MaxCommands    int
	MaxErrors      int
	IdleTimeout    time.Duration
	CommandTimeout time.Duration
	DataTimeout    time.Duration
}

// Session is the server-side state for a single SMTP/LMTP connection: peer
// information, negotiated extensions, TLS/AUTH state, and the in-flight
// mail transaction (§3 Data Model).
type Session struct {
	conn   net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	reader *bufio.Reader
	writer *bufio.Writer

	mu               sync.RWMutex
	state            State
	extendedSMTP     bool
	lmtp             bool
	loginFailedCount int
	currentMail      *Mail
	extensions       map[Extension]string

	Trace          Trace
	TLS            TLSInfo
	Auth           AuthInfo
	Limits         Limits
	ServerHostname string
	Proxy          *proxyproto.Info

	closedChan chan struct{}
	closed     bool
}

// NewSession wraps a freshly-accepted connection.
func NewSession(ctx context.Context, conn net.Conn, serverHostname string, limits Limits, bufSize int) *Session {
	sessCtx, cancel := context.WithCancel(ctx)
	now := time.Now()
	return &Session{
		conn:           conn,
		ctx:            sessCtx,
		cancel:         cancel,
		reader:         bufio.NewReaderSize(conn, bufSize),
		writer:         bufio.NewWriterSize(conn, bufSize),
		state:          StatePreGreeting,
		extensions:     make(map[Extension]string),
		ServerHostname: serverHostname,
		Limits:         limits,
		Trace: Trace{
			ID:          ulid.Make().String(),
			RemoteAddr:  addrString(conn.RemoteAddr()),
			LocalAddr:   addrString(conn.LocalAddr()),
			ConnectedAt: now,
		},
		closedChan: make(chan struct{}),
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// stateInfo is a consistent snapshot taken under a single lock acquisition,
// avoiding repeated RLock/RUnlock pairs in hot command-handling paths.
type stateInfo struct {
	State           State
	IsTLS           bool
	IsAuthenticated bool
}

func (s *Session) getStateInfo() stateInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateInfo{State: s.state, IsTLS: s.TLS.Active, IsAuthenticated: s.Auth.Authenticated}
}

func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *Session) LocalAddr() net.Addr  { return s.conn.LocalAddr() }

func (s *Session) IsTLS() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TLS.Active
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Auth.Authenticated
}

func (s *Session) IsLMTP() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lmtp
}

func (s *Session) setLMTP(v bool) {
	s.mu.Lock()
	s.lmtp = v
	s.mu.Unlock()
}

func (s *Session) ExtendedSMTP() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extendedSMTP
}

func (s *Session) CurrentMail() *Mail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentMail
}

// beginTransaction starts a new mail transaction, replacing any prior one.
func (s *Session) beginTransaction() *Mail {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentMail = NewMail()
	return s.currentMail
}

// resetTransaction drops the in-flight envelope/content, per RSET (§4.4).
// It never touches host_name, extended_smtp, tls_state, or auth_identity.
func (s *Session) resetTransaction() {
	s.mu.Lock()
	s.currentMail = nil
	if s.state > StateGreeted {
		s.state = StateGreeted
	}
	s.mu.Unlock()
}

func (s *Session) completeTransaction() {
	s.mu.Lock()
	s.Trace.TransactionCount++
	s.currentMail = nil
	s.state = StateGreeted
	s.mu.Unlock()
}

func (s *Session) setClientHostname(name string) {
	s.mu.Lock()
	s.Trace.ClientHostname = name
	s.mu.Unlock()
}

func (s *Session) SetExtension(ext Extension, params string) {
	s.mu.Lock()
	s.extensions[ext] = params
	s.mu.Unlock()
}

func (s *Session) HasExtension(ext Extension) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.extensions[ext]
	return ok
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	s.Trace.LastActivity = time.Now()
	s.Trace.CommandCount++
	s.mu.Unlock()
}

func (s *Session) RecordError() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trace.ErrorCount++
	return s.Trace.ErrorCount
}

func (s *Session) RecordLoginFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginFailedCount++
	return s.loginFailedCount
}

func (s *Session) LoginFailedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginFailedCount
}

// Close tears down the underlying connection once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closedChan)
	s.cancel()
	return s.conn.Close()
}

func (s *Session) Done() <-chan struct{} { return s.closedChan }

// UpgradeToTLS performs the STARTTLS handshake in place and resets Session
// state per RFC 3207: the buffered plaintext reader is discarded, and on
// success host_name/mail transaction are cleared while peer/proxy data and
// extended_smtp survive.
func (s *Session) UpgradeToTLS(config *tls.Config) error {
	tlsConn := tls.Server(s.conn, config)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		return err
	}

	s.conn = tlsConn
	s.reader = bufio.NewReaderSize(tlsConn, s.reader.Size())
	s.writer = bufio.NewWriterSize(tlsConn, s.writer.Size())

	state := tlsConn.ConnectionState()

	s.mu.Lock()
	s.TLS = TLSInfo{
		Active:             true,
		Version:            state.Version,
		CipherSuite:        state.CipherSuite,
		ServerName:         state.ServerName,
		PeerCertificates:   state.PeerCertificates,
		NegotiatedProtocol: state.NegotiatedProtocol,
	}
	s.currentMail = nil
	s.Trace.ClientHostname = ""
	s.state = StatePreGreeting
	s.extensions = make(map[Extension]string)
	s.mu.Unlock()

	return nil
}

// GenerateReceivedHeader builds a trace field describing this hop, choosing
// the "with" protocol token per RFC 3848 based on TLS/AUTH/SMTPUTF8 state.
func (s *Session) GenerateReceivedHeader(forRecipient string) TraceField {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proto := "SMTP"
	if s.extendedSMTP {
		proto = "ESMTP"
	}
	if _, ok := s.extensions[ExtSMTPUTF8]; ok && s.currentMail != nil && s.currentMail.Envelope.SMTPUTF8 {
		proto = "UTF8SMTP"
	}
	if s.TLS.Active {
		proto += "S"
	}
	if s.Auth.Authenticated {
		proto += "A"
	}

	host, _, _ := net.SplitHostPort(s.Trace.RemoteAddr)
	if host == "" {
		host = s.Trace.RemoteAddr
	}

	return TraceField{
		FromDomain: s.Trace.ClientHostname,
		FromIP:     host,
		ByDomain:   s.ServerHostname,
		Via:        "TCP",
		With:       proto,
		For:        forRecipient,
		Timestamp:  time.Now(),
		TLS:        s.TLS.Active,
	}
}
