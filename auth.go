package smtpd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/corvidmail/smtpd/lineio"
	"github.com/corvidmail/smtpd/sasl"
)

// getEffectiveAuthMechanisms returns the configured AuthMechanisms with any
// names in AuthExcludeMechanisms removed (§4.3).
func (s *Server) getEffectiveAuthMechanisms() []string {
	if len(s.config.AuthExcludeMechanisms) == 0 {
		return s.config.AuthMechanisms
	}
	excluded := make(map[string]bool, len(s.config.AuthExcludeMechanisms))
	for _, m := range s.config.AuthExcludeMechanisms {
		excluded[strings.ToUpper(m)] = true
	}
	var out []string
	for _, m := range s.config.AuthMechanisms {
		if !excluded[strings.ToUpper(m)] {
			out = append(out, m)
		}
	}
	return out
}

// newMechanism resolves a mechanism name to an implementation, preferring a
// handler override (Callbacks.AuthMechanism) over the built-ins, per §4.3
// and Open Question Decision 3.
func (s *Server) newMechanism(name string) sasl.Mechanism {
	if s.config.Callbacks != nil && s.config.Callbacks.AuthMechanism != nil {
		if m := s.config.Callbacks.AuthMechanism(name); m != nil {
			return m
		}
	}
	switch name {
	case "PLAIN":
		return sasl.NewPlain()
	case "LOGIN":
		return sasl.NewLogin()
	default:
		return nil
	}
}

func (s *Server) handleAuth(conn *Session, args string, reader *bufio.Reader) *Response {
	if conn.State() < StateGreeted {
		resp := ResponseBadSequence("Send EHLO first")
		return &resp
	}
	if conn.IsAuthenticated() {
		resp := ResponseBadSequence("Already authenticated")
		return &resp
	}
	if conn.State() >= StateMail {
		resp := ResponseBadSequence("Command not allowed during mail transaction")
		return &resp
	}
	if s.config.AuthRequireTLS && !conn.IsTLS() {
		return &Response{Code: CodeEncryptionNeeded, EnhancedCode: ESCSecurityError, Message: "Must issue a STARTTLS command first"}
	}

	name, initialResponse, _ := strings.Cut(strings.TrimSpace(args), " ")
	name = strings.ToUpper(name)

	allowed := false
	for _, m := range s.getEffectiveAuthMechanisms() {
		if strings.EqualFold(m, name) {
			allowed = true
			break
		}
	}
	if !allowed {
		return &Response{Code: CodeParameterNotImpl, EnhancedCode: ESCInvalidArgs, Message: "Mechanism not implemented"}
	}

	mechanism := s.newMechanism(name)
	if mechanism == nil {
		return &Response{Code: CodeParameterNotImpl, EnhancedCode: ESCInvalidArgs, Message: "Mechanism not implemented"}
	}

	creds, err := s.runSASLExchange(conn, mechanism, initialResponse, reader)
	if err != nil {
		if errors.Is(err, sasl.ErrAuthenticationCancelled) {
			resp := Response{Code: CodeSyntaxErrorParam, Message: "Auth aborted"}
			return &resp
		}
		if errors.Is(err, sasl.ErrInvalidBase64) || errors.Is(err, sasl.ErrInvalidFormat) {
			resp := Response{Code: CodeSyntaxErrorParam, Message: "Auth aborted"}
			return &resp
		}

		attempts := conn.RecordLoginFailure()
		if s.config.AuthMaxAttempts > 0 && attempts >= s.config.AuthMaxAttempts {
			s.writeResponse(conn, Response{Code: CodeServiceNotAvail, Message: "Too many authentication failures"})
			_ = conn.Close()
			return nil
		}
		resp := Response{Code: CodeAuthCredsInvalid, EnhancedCode: ESCAuthCredentialsInvalid, Message: fmt.Sprintf("Authentication failed: %v", err)}
		return &resp
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnAuth != nil {
		if err := s.config.Callbacks.OnAuth(conn.Context(), conn, creds); err != nil {
			attempts := conn.RecordLoginFailure()
			if s.config.AuthMaxAttempts > 0 && attempts >= s.config.AuthMaxAttempts {
				s.writeResponse(conn, Response{Code: CodeServiceNotAvail, Message: "Too many authentication failures"})
				_ = conn.Close()
				return nil
			}
			resp := Response{Code: CodeAuthCredsInvalid, EnhancedCode: ESCAuthCredentialsInvalid, Message: fmt.Sprintf("Authentication failed: %v", err)}
			return &resp
		}
	}

	conn.mu.Lock()
	conn.Auth = AuthInfo{Authenticated: true, Mechanism: name, Identity: creds.Identity(), AuthenticatedAt: time.Now()}
	conn.mu.Unlock()

	resp := Response{Code: CodeAuthSuccess, EnhancedCode: ESCSecuritySuccess, Message: "Authentication successful"}
	return &resp
}

// runSASLExchange drives the challenge/response loop, encoding each
// mechanism as a small start/feed state machine per §4.3 and §9.
func (s *Server) runSASLExchange(conn *Session, mechanism sasl.Mechanism, initialResponse string, reader *bufio.Reader) (*sasl.Credentials, error) {
	challenge, done, err := mechanism.Start(initialResponse)
	if err != nil {
		return nil, err
	}

	for !done {
		s.writeResponse(conn, Response{Code: CodeAuthContinue, Message: challenge})

		line, err := lineio.ReadLine(reader, s.config.MaxLineLength, false)
		if err != nil {
			return nil, err
		}
		if line == "*" {
			return nil, sasl.ErrAuthenticationCancelled
		}

		challenge, done, err = mechanism.Next(line)
		if err != nil {
			return nil, err
		}
	}

	return mechanism.Credentials(), nil
}
