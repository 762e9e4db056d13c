package smtpd

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Config holds all tunables for a Server. Use DefaultConfig or
// SubmissionConfig for sensible starting points, or build one directly.
type Config struct {
	// Hostname is advertised in the greeting banner and EHLO reply.
	Hostname string

	// Addr is the TCP listen address (e.g. ":25"). Empty hostname with a
	// non-empty port listens dual-stack; see Server.ListenAndServe.
	Addr string

	// UnixAddr, if non-empty, additionally listens on a UNIX-domain socket
	// at this filesystem path (§6 External Interfaces).
	UnixAddr string

	// LMTP switches command handling into LMTP mode (RFC 2033): HELO/EHLO
	// are rejected, LHLO is required, and DATA replies with one status per
	// recipient instead of a single status.
	LMTP bool

	// TLSConfig, if non-nil, enables STARTTLS. If ImplicitTLS is also set,
	// the listener instead performs the handshake immediately (SMTPS) and
	// STARTTLS is not offered on that listener.
	TLSConfig   *tls.Config
	ImplicitTLS bool
	RequireTLS  bool

	// ProxyProtocolTimeout, if greater than zero, enables PROXY protocol
	// v1/v2 parsing on accepted connections, bounding how long the server
	// will wait for the preamble (§4.2).
	ProxyProtocolTimeout time.Duration

	// MaxMessageSize bounds the DATA-phase payload in octets (0 disables).
	MaxMessageSize int64
	// MaxRecipients bounds RCPT count per transaction (0 disables).
	MaxRecipients int
	// MaxLineLength bounds a single command-mode line in octets, CRLF
	// included. Defaults to 1001 per §4.1.
	MaxLineLength int
	// MaxReceivedHeaders gates loop detection (0 disables); see detectLoop.
	MaxReceivedHeaders int
	// MaxCommands and MaxErrors bound abuse per connection (0 disables).
	MaxCommands int
	MaxErrors   int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DataTimeout  time.Duration
	IdleTimeout  time.Duration

	// AuthMechanisms lists the SASL mechanism names offered in the EHLO
	// AUTH line and accepted by the AUTH command, in advertised order.
	AuthMechanisms []string
	// AuthExcludeMechanisms disables specific mechanisms even if built in
	// or supplied via Callbacks.AuthMechanism (§4.3).
	AuthExcludeMechanisms []string
	// AuthRequireTLS refuses AUTH until STARTTLS has completed.
	AuthRequireTLS bool
	// AuthMaxAttempts closes the connection with 421 once
	// login_failed_count reaches this value (0 disables).
	AuthMaxAttempts int
	// RequireAuth refuses (530) every command except AUTH, HELO, EHLO,
	// LHLO, NOOP, RSET, STARTTLS, QUIT and HELP until the session is
	// authenticated.
	RequireAuth bool

	// MaxConnections bounds concurrently tracked connections (0 disables).
	MaxConnections int

	Callbacks *Callbacks
	Logger    *slog.Logger

	GracefulShutdown bool
	ShutdownTimeout  time.Duration
}

// RecommendedLineLength is the default command-mode line length limit,
// 1001 octets including the terminating CRLF (§4.1).
const RecommendedLineLength = 1001

// DefaultConfig returns a Config with the defaults described in §4/§5/§6.
func DefaultConfig(hostname string) *Config {
	return &Config{
		Hostname:           hostname,
		Addr:               ":8025",
		MaxMessageSize:     33554432,
		MaxLineLength:      RecommendedLineLength,
		MaxReceivedHeaders: 100,
		ReadTimeout:        5 * time.Minute,
		WriteTimeout:       5 * time.Minute,
		DataTimeout:        10 * time.Minute,
		IdleTimeout:        5 * time.Minute,
		AuthMechanisms:     []string{"PLAIN", "LOGIN"},
		AuthMaxAttempts:    3,
		Logger:             slog.Default(),
		ShutdownTimeout:    30 * time.Second,
	}
}

// SubmissionConfig returns defaults suited to an authenticated mail
// submission agent (RFC 6409): TLS/AUTH required, LOGIN excluded.
func SubmissionConfig(hostname string) *Config {
	c := DefaultConfig(hostname)
	c.Addr = ":587"
	c.AuthMechanisms = []string{"PLAIN"}
	c.AuthRequireTLS = true
	c.RequireAuth = true
	return c
}

// LMTPConfig returns defaults suited to an LMTP local-delivery listener
// (RFC 2033), conventionally reached over a UNIX-domain socket.
func LMTPConfig(hostname, unixAddr string) *Config {
	c := DefaultConfig(hostname)
	c.Addr = ""
	c.UnixAddr = unixAddr
	c.LMTP = true
	return c
}
