package smtpd

import (
	"context"

	"github.com/corvidmail/smtpd/proxyproto"
	"github.com/corvidmail/smtpd/sasl"
)

// Callbacks is the Handler Interface (§4.5): a struct of optional hook
// functions an embedder implements to participate in the SMTP/LMTP
// transaction. Any field may be left nil; the dispatcher falls back to a
// canonical default behavior for each hook, mirroring aiosmtpd's
// "any handle_* method may be absent" handler contract.
type Callbacks struct {
	// OnConnect is called immediately after a connection is accepted, before
	// the greeting banner is sent. Returning an error rejects the connection
	// with a 554 and closes it.
	OnConnect func(ctx context.Context, s *Session) error

	// OnDisconnect is called once, after the connection is closed.
	OnDisconnect func(ctx context.Context, s *Session)

	// OnProxy is called after a valid PROXY protocol header is parsed and
	// before the banner is sent. Returning an error closes the connection
	// without a reply.
	OnProxy func(ctx context.Context, s *Session, info *proxyproto.Info) error

	// OnHelo is called on HELO. Returning an error yields a 550.
	OnHelo func(ctx context.Context, s *Session, hostname string) error

	// OnEhlo is called on EHLO/LHLO. It may return a replacement extension
	// list (nil keeps the computed default); this is the one hook allowed
	// to override its command's reply content instead of just gating it.
	OnEhlo func(ctx context.Context, s *Session, hostname string) (map[Extension]string, error)

	// OnMailFrom is called after MAIL FROM is parsed, before the
	// transaction is recorded as started.
	OnMailFrom func(ctx context.Context, s *Session, from Path, params map[string]string) error

	// OnRcptTo is called after each RCPT TO is parsed.
	OnRcptTo func(ctx context.Context, s *Session, to Path, params map[string]string) error

	// OnData is called when DATA begins, before the "354" intermediate
	// reply is sent.
	OnData func(ctx context.Context, s *Session) error

	// OnMessage is called once the full message body has been read and
	// parsed. In LMTP mode, Statuses must contain exactly one Response per
	// recipient, in RCPT order: a nil return sends a success reply for every
	// recipient, and a recipient with no status gets a 500 reply. A nil/empty
	// return in SMTP mode is treated as unconditional acceptance.
	OnMessage func(ctx context.Context, s *Session, mail *Mail) (*LMTPStatuses, error)

	// OnReset is called on RSET, before the transaction is cleared.
	OnReset func(ctx context.Context, s *Session)

	// OnVerify backs VRFY. Returning a nil func leaves VRFY policy-disabled
	// (252 response).
	OnVerify func(ctx context.Context, s *Session, arg string) (MailboxAddress, error)

	// OnExpand backs EXPN.
	OnExpand func(ctx context.Context, s *Session, arg string) ([]MailboxAddress, error)

	// OnHelp backs HELP; a nil or empty return falls through to the
	// built-in canned response.
	OnHelp func(ctx context.Context, s *Session, topic string) []string

	// OnStartTLS gates STARTTLS before the "220 Ready to start TLS" reply.
	OnStartTLS func(ctx context.Context, s *Session) error

	// OnAuth is called once a SASL exchange completes successfully, before
	// the session is marked authenticated.
	OnAuth func(ctx context.Context, s *Session, creds *sasl.Credentials) error

	// AuthMechanism lets a handler override or add a SASL mechanism by
	// name (upper-cased). Returning non-nil replaces the built-in
	// implementation for that name, per §4.3 and Open Question 3.
	AuthMechanism func(name string) sasl.Mechanism

	// OnUnknownCommand is called for any verb the dispatcher does not
	// recognize. A non-nil return is sent as the reply; a nil return (or a
	// nil hook) yields the default "500 Command unrecognized".
	OnUnknownCommand func(ctx context.Context, s *Session, verb, args string) *Response

	// OnException is not called by the dispatcher: an error returned by any
	// other hook is turned into a reply by the command handler that called
	// that hook.
	OnException func(ctx context.Context, s *Session, err error) *Response
}

// LMTPStatuses carries the per-recipient delivery statuses an OnMessage
// handler returns in LMTP mode (§4.4, §6). In SMTP mode it is ignored.
type LMTPStatuses struct {
	Statuses []Response
}
