package smtpd

import (
	"log/slog"
	"net"
	"testing"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	sess := NewSession(t.Context(), server, "mx.example.test", Limits{}, RecommendedLineLength)
	t.Cleanup(func() { _ = sess.Close() })
	return sess, client
}

func newTestServer(t *testing.T, configure func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig("mx.example.test")
	cfg.Logger = slog.New(slog.DiscardHandler)
	if configure != nil {
		configure(cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func drainClient(client net.Conn) {
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()
}

func TestDetectLoopUnderThreshold(t *testing.T) {
	mail := NewMail()
	mail.Content.Headers = Headers{{Name: "Received", Value: "a"}, {Name: "Received", Value: "b"}}

	if err := detectLoop(mail, slog.New(slog.DiscardHandler), 5); err != nil {
		t.Errorf("unexpected loop error: %v", err)
	}
}

func TestDetectLoopAtThreshold(t *testing.T) {
	mail := NewMail()
	mail.Content.Headers = Headers{{Name: "Received", Value: "a"}, {Name: "Received", Value: "b"}}

	if err := detectLoop(mail, slog.New(slog.DiscardHandler), 2); err != ErrLoopDetected {
		t.Errorf("detectLoop() = %v, want ErrLoopDetected", err)
	}
}

func TestDetectLoopDisabled(t *testing.T) {
	mail := NewMail()
	mail.Content.Headers = Headers{{Name: "Received", Value: "a"}}

	if err := detectLoop(mail, slog.New(slog.DiscardHandler), 0); err != nil {
		t.Errorf("detectLoop with maxAllowed=0 should never fail, got %v", err)
	}
}

func TestHandleHeloRequiresHostname(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)

	resp := srv.handleHelo(sess, "")
	if resp.Code != CodeSyntaxError {
		t.Errorf("handleHelo(\"\") code = %d, want %d", resp.Code, CodeSyntaxError)
	}
}

func TestHandleHeloSetsGreetedState(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)

	resp := srv.handleHelo(sess, "client.example.test")
	if resp.Code != CodeOK {
		t.Fatalf("handleHelo code = %d, want %d", resp.Code, CodeOK)
	}
	if sess.State() != StateGreeted {
		t.Errorf("state = %v, want StateGreeted", sess.State())
	}
}

func TestHandleHeloRejectedInLMTPMode(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.LMTP = true })
	sess, client := newTestSession(t)
	drainClient(client)

	resp := srv.handleHelo(sess, "client.example.test")
	if resp.Code != CodeSyntaxError {
		t.Errorf("handleHelo in LMTP mode code = %d, want %d", resp.Code, CodeSyntaxError)
	}
	if resp.Message != `Error: command "HELO" not recognized` {
		t.Errorf("handleHelo in LMTP mode message = %q", resp.Message)
	}
}

func TestHandleMailRequiresGreeting(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)

	resp := srv.handleMail(sess, "FROM:<alice@example.test>")
	if resp.Code != CodeBadSequence {
		t.Errorf("handleMail before greeting code = %d, want %d", resp.Code, CodeBadSequence)
	}
}

func TestHandleMailStartsTransaction(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)
	sess.extendedSMTP = true

	resp := srv.handleMail(sess, "FROM:<alice@example.test> SIZE=100")
	if resp.Code != CodeOK {
		t.Fatalf("handleMail code = %d, want %d", resp.Code, CodeOK)
	}
	mail := sess.CurrentMail()
	if mail == nil {
		t.Fatal("expected a started transaction")
	}
	if mail.Envelope.From.Mailbox.String() != "alice@example.test" {
		t.Errorf("from = %q", mail.Envelope.From.Mailbox.String())
	}
	if mail.Envelope.Size != 100 {
		t.Errorf("size = %d, want 100", mail.Envelope.Size)
	}
}

func TestHandleMailRejectsOversizedMessage(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.MaxMessageSize = 10 })
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)
	sess.extendedSMTP = true

	resp := srv.handleMail(sess, "FROM:<alice@example.test> SIZE=1000")
	if resp.Code != CodeExceededStorage {
		t.Errorf("handleMail oversized code = %d, want %d", resp.Code, CodeExceededStorage)
	}
}

func TestHandleMailRejectsESMTPParamsOnPlainHelo(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.handleMail(sess, "FROM:<alice@example.test> BODY=8BITMIME")
	if resp.Code != CodeParamsNotRecog {
		t.Errorf("handleMail with ESMTP param on HELO session code = %d, want %d", resp.Code, CodeParamsNotRecog)
	}
}

func TestHandleRcptRejectsESMTPParamsOnPlainHelo(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)
	srv.handleMail(sess, "FROM:<alice@example.test>")

	resp := srv.handleRcpt(sess, "TO:<bob@example.test> NOTIFY=SUCCESS")
	if resp.Code != CodeParamsNotRecog {
		t.Errorf("handleRcpt with ESMTP param on HELO session code = %d, want %d", resp.Code, CodeParamsNotRecog)
	}
}

func TestHandleRcptRequiresMailFirst(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.handleRcpt(sess, "TO:<bob@example.test>")
	if resp.Code != CodeBadSequence {
		t.Errorf("handleRcpt before MAIL code = %d, want %d", resp.Code, CodeBadSequence)
	}
}

func TestHandleRcptAppendsRecipient(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)
	srv.handleMail(sess, "FROM:<alice@example.test>")

	resp := srv.handleRcpt(sess, "TO:<bob@example.test>")
	if resp.Code != CodeOK {
		t.Fatalf("handleRcpt code = %d, want %d", resp.Code, CodeOK)
	}
	if len(sess.CurrentMail().Envelope.To) != 1 {
		t.Errorf("recipients = %d, want 1", len(sess.CurrentMail().Envelope.To))
	}
}

func TestHandleRcptEnforcesMaxRecipients(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.MaxRecipients = 1 })
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)
	srv.handleMail(sess, "FROM:<alice@example.test>")
	srv.handleRcpt(sess, "TO:<bob@example.test>")

	resp := srv.handleRcpt(sess, "TO:<carol@example.test>")
	if resp.Code != CodeInsufficientStor {
		t.Errorf("handleRcpt over limit code = %d, want %d", resp.Code, CodeInsufficientStor)
	}
}

func TestHandleRsetClearsTransaction(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)
	srv.handleMail(sess, "FROM:<alice@example.test>")

	resp := srv.handleRset(sess)
	if resp.Code != CodeOK {
		t.Fatalf("handleRset code = %d, want %d", resp.Code, CodeOK)
	}
	if sess.CurrentMail() != nil {
		t.Error("expected transaction to be cleared")
	}
}

func TestHandleVrfyDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)

	resp := srv.handleVrfy(sess, "bob")
	if resp.Code != CodeCannotVRFY {
		t.Errorf("handleVrfy code = %d, want %d", resp.Code, CodeCannotVRFY)
	}
}

func TestGlobalGateRequireTLSBlocksMail(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.RequireTLS = true })
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.dispatch(sess, CmdMail, "FROM:<alice@example.test>", nil, slog.New(slog.DiscardHandler))
	if resp.Code != CodeAuthRequiredCode {
		t.Errorf("MAIL without TLS code = %d, want %d", resp.Code, CodeAuthRequiredCode)
	}
}

func TestGlobalGateRequireTLSAllowsWhitelistedCommands(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.RequireTLS = true })
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.dispatch(sess, CmdNoop, "", nil, slog.New(slog.DiscardHandler))
	if resp.Code != CodeOK {
		t.Errorf("NOOP without TLS code = %d, want %d", resp.Code, CodeOK)
	}
}

func TestGlobalGateRequireAuthBlocksVrfy(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.RequireAuth = true })
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.dispatch(sess, CmdVrfy, "bob", nil, slog.New(slog.DiscardHandler))
	if resp.Code != CodeAuthRequiredCode {
		t.Errorf("VRFY without auth code = %d, want %d", resp.Code, CodeAuthRequiredCode)
	}
}

func TestGlobalGateRequireAuthAllowsAuthCommand(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RequireAuth = true
		c.AuthMechanisms = []string{"PLAIN"}
	})
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.dispatch(sess, CmdAuth, "PLAIN AGFsaWNlAHNlY3JldA==", nil, slog.New(slog.DiscardHandler))
	if resp.Code == CodeAuthRequiredCode {
		t.Errorf("AUTH should not be blocked by the auth_required gate, got %d", resp.Code)
	}
}

func TestHandleStartTLSWithoutConfig(t *testing.T) {
	srv := newTestServer(t, nil)
	sess, client := newTestSession(t)
	drainClient(client)
	sess.setState(StateGreeted)

	resp := srv.handleStartTLS(sess)
	if resp.Code != CodeCommandNotImpl {
		t.Errorf("handleStartTLS without TLSConfig code = %d, want %d", resp.Code, CodeCommandNotImpl)
	}
}
