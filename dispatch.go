package smtpd

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/corvidmail/smtpd/lineio"
	"github.com/corvidmail/smtpd/utils"
	"github.com/oklog/ulid/v2"
)

// Command identifies a canonicalized SMTP/LMTP verb (§4.4).
type Command int

const (
	CmdUnknown Command = iota
	CmdHelo
	CmdEhlo
	CmdLhlo
	CmdMail
	CmdRcpt
	CmdData
	CmdRset
	CmdVrfy
	CmdExpn
	CmdHelp
	CmdNoop
	CmdQuit
	CmdAuth
	CmdStartTLS
)

// detectLoop counts "Received" headers and reports a probable mail loop
// once the count reaches maxAllowed (0 disables the check).
func detectLoop(mail *Mail, logger *slog.Logger, maxAllowed int) error {
	if maxAllowed <= 0 {
		return nil
	}
	receivedCount := mail.Content.Headers.Count("Received")
	if receivedCount >= maxAllowed {
		logger.Warn("mail loop detected",
			slog.Int("received_count", receivedCount),
			slog.Int("max_allowed", maxAllowed),
			slog.String("from", mail.Envelope.From.String()),
		)
		return ErrLoopDetected
	}
	return nil
}

func (s *Server) handleHelo(conn *Session, hostname string) *Response {
	if s.config.LMTP {
		resp := Response{Code: CodeSyntaxError, Message: `Error: command "HELO" not recognized`}
		return &resp
	}
	if hostname == "" {
		resp := ResponseSyntaxError("Hostname required")
		return &resp
	}
	hostname = normalizeHostname(hostname)

	if s.config.Callbacks != nil && s.config.Callbacks.OnHelo != nil {
		if err := s.config.Callbacks.OnHelo(conn.Context(), conn, hostname); err != nil {
			resp := ResponseMailboxNotFound(err.Error())
			return &resp
		}
	}

	conn.mu.Lock()
	conn.extendedSMTP = false
	conn.mu.Unlock()
	conn.setClientHostname(hostname)
	conn.setState(StateGreeted)
	conn.resetTransaction()

	ip, err := utils.GetIPFromAddr(conn.RemoteAddr())
	if err != nil {
		ip = net.IPv4zero
	}

	msg := fmt.Sprintf("%s Hello %s [%s]", s.config.Hostname, ip.String(), conn.Trace.ID)
	return &Response{Code: CodeOK, Message: msg}
}

// buildExtensions centralizes EHLO/LHLO capability advertisement (§4.2).
func (s *Server) buildExtensions(conn *Session) map[Extension]string {
	extensions := make(map[Extension]string)

	extensions[Ext8BitMIME] = ""
	conn.SetExtension(Ext8BitMIME, "")
	extensions[ExtSMTPUTF8] = ""
	conn.SetExtension(ExtSMTPUTF8, "")
	extensions[ExtEnhancedStatusCodes] = ""
	conn.SetExtension(ExtEnhancedStatusCodes, "")
	extensions[ExtPipelining] = ""
	conn.SetExtension(ExtPipelining, "")

	if s.config.TLSConfig != nil && !conn.IsTLS() {
		extensions[ExtSTARTTLS] = ""
		conn.SetExtension(ExtSTARTTLS, "")
	}
	if s.config.MaxMessageSize > 0 {
		sizeStr := strconv.FormatInt(s.config.MaxMessageSize, 10)
		extensions[ExtSize] = sizeStr
		conn.SetExtension(ExtSize, sizeStr)
	}

	effectiveMechanisms := s.getEffectiveAuthMechanisms()
	if len(effectiveMechanisms) > 0 && (!s.config.AuthRequireTLS || conn.IsTLS()) {
		authParams := strings.Join(effectiveMechanisms, " ")
		extensions[ExtAuth] = authParams
		conn.SetExtension(ExtAuth, authParams)
	}

	if conn.IsTLS() && s.config.TLSConfig != nil {
		extensions[ExtRequireTLS] = ""
		conn.SetExtension(ExtRequireTLS, "")
	}

	return extensions
}

func (s *Server) handleGreeting(conn *Session, hostname string, lmtp bool) *Response {
	if hostname == "" {
		resp := ResponseSyntaxError("Hostname required")
		return &resp
	}
	hostname = normalizeHostname(hostname)
	if lmtp != s.config.LMTP {
		if lmtp {
			resp := ResponseCommandNotImplemented("LHLO")
			return &resp
		}
		resp := Response{Code: CodeSyntaxError, Message: `Error: command "EHLO" not recognized`}
		return &resp
	}

	extensions := s.buildExtensions(conn)

	if s.config.Callbacks != nil && s.config.Callbacks.OnEhlo != nil {
		extOverride, err := s.config.Callbacks.OnEhlo(conn.Context(), conn, hostname)
		if err != nil {
			resp := ResponseMailboxNotFound(err.Error())
			return &resp
		}
		if extOverride != nil {
			extensions = extOverride
		}
	}

	conn.setClientHostname(hostname)
	conn.setLMTP(lmtp)
	conn.setState(StateGreeted)
	conn.resetTransaction()

	ip, err := utils.GetIPFromAddr(conn.RemoteAddr())
	if err != nil {
		ip = net.IPv4zero
	}

	greeting := fmt.Sprintf("%s Hello %s [%s]", s.config.Hostname, ip.String(), conn.Trace.ID)
	lines := make([]string, 1, len(extensions)+1)
	lines[0] = greeting
	for ext, params := range extensions {
		if params != "" {
			lines = append(lines, fmt.Sprintf("%s %s", ext, params))
		} else {
			lines = append(lines, string(ext))
		}
	}

	s.writeMultilineResponse(conn, CodeOK, lines)
	return nil
}

func (s *Server) handleEhlo(conn *Session, hostname string) *Response {
	conn.mu.Lock()
	conn.extendedSMTP = true
	conn.mu.Unlock()
	return s.handleGreeting(conn, hostname, false)
}

func (s *Server) handleLhlo(conn *Session, hostname string) *Response {
	conn.mu.Lock()
	conn.extendedSMTP = true
	conn.mu.Unlock()
	return s.handleGreeting(conn, hostname, true)
}

func (s *Server) handleMail(conn *Session, args string) *Response {
	state := conn.getStateInfo()

	if state.State < StateGreeted {
		resp := ResponseBadSequence("Send EHLO/HELO first")
		return &resp
	}
	if state.State >= StateMail {
		resp := ResponseBadSequence("MAIL command already given")
		return &resp
	}

	args = strings.TrimSpace(args)
	if !strings.HasPrefix(strings.ToUpper(args), "FROM:") {
		resp := ResponseSyntaxError("Syntax: MAIL FROM:<address>")
		return &resp
	}
	args = strings.TrimSpace(args[5:])

	from, params, err := parsePathWithParams(args)
	if err != nil {
		resp := ResponseSyntaxError(err.Error())
		return &resp
	}
	if !conn.ExtendedSMTP() && len(params) > 0 {
		return &Response{Code: CodeParamsNotRecog, Message: "Parameters not recognized without ESMTP"}
	}
	if !utils.ContainsNonASCII(from.Mailbox.Domain) {
		from.Mailbox.Domain = normalizeHostname(from.Mailbox.Domain)
	}

	if utils.ContainsNonASCII(from.Mailbox.LocalPart) || utils.ContainsNonASCII(from.Mailbox.Domain) {
		if _, hasSMTPUTF8 := params["SMTPUTF8"]; !hasSMTPUTF8 {
			return &Response{Code: CodeMailboxNameInval, EnhancedCode: ESCNonASCIINoSMTPUTF8, Message: "Address contains non-ASCII characters but SMTPUTF8 not requested"}
		}
	}

	if sizeStr, ok := params["SIZE"]; ok {
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			resp := ResponseSyntaxError("Invalid SIZE parameter")
			return &resp
		}
		if s.config.MaxMessageSize > 0 && size > s.config.MaxMessageSize {
			resp := ResponseExceededStorage("Message too large")
			return &resp
		}
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnMailFrom != nil {
		if err := s.config.Callbacks.OnMailFrom(conn.Context(), conn, from, params); err != nil {
			resp := ResponseMailboxNotFound(err.Error())
			return &resp
		}
	}

	mail := conn.beginTransaction()
	mail.Envelope.From = from
	mail.Envelope.BodyType = BodyType7Bit

	if bodyType, ok := params["BODY"]; ok {
		bodyTypeUpper := BodyType(strings.ToUpper(bodyType))
		switch bodyTypeUpper {
		case BodyType7Bit, BodyType8BitMIME:
			mail.Envelope.BodyType = bodyTypeUpper
		default:
			return &Response{Code: CodeParameterNotImpl, EnhancedCode: ESCInvalidArgs, Message: "Invalid BODY parameter"}
		}
	}
	if _, ok := params["SMTPUTF8"]; ok {
		mail.Envelope.SMTPUTF8 = true
	}
	if _, ok := params["REQUIRETLS"]; ok {
		if !conn.IsTLS() {
			return &Response{Code: CodeTransactionFail, EnhancedCode: ESCSecurityError, Message: "REQUIRETLS requires TLS connection"}
		}
		if !conn.HasExtension(ExtRequireTLS) {
			return &Response{Code: CodeTransactionFail, EnhancedCode: ESCRequireTLSRequired, Message: "REQUIRETLS support required"}
		}
		mail.Envelope.RequireTLS = true
	}
	if sizeStr, ok := params["SIZE"]; ok {
		mail.Envelope.Size, _ = strconv.ParseInt(sizeStr, 10, 64)
	}
	if conn.IsAuthenticated() {
		mail.Envelope.Auth = conn.Auth.Identity
	}
	mail.Envelope.Options = params

	conn.setState(StateMail)

	return &Response{Code: CodeOK, EnhancedCode: ESCAddressValid, Message: "OK"}
}

func (s *Server) handleRcpt(conn *Session, args string) *Response {
	if conn.State() < StateMail {
		resp := ResponseBadSequence("Send MAIL first")
		return &resp
	}

	mail := conn.CurrentMail()
	if mail == nil {
		resp := ResponseBadSequence("No mail transaction")
		return &resp
	}

	if s.config.MaxRecipients > 0 && len(mail.Envelope.To) >= s.config.MaxRecipients {
		return &Response{Code: CodeInsufficientStor, EnhancedCode: ESCTempTooManyRcpt, Message: "Too many recipients"}
	}

	args = strings.TrimSpace(args)
	if !strings.HasPrefix(strings.ToUpper(args), "TO:") {
		resp := ResponseSyntaxError("Syntax: RCPT TO:<address>")
		return &resp
	}
	args = strings.TrimSpace(args[3:])

	to, params, err := parsePathWithParams(args)
	if err != nil {
		resp := ResponseSyntaxError(err.Error())
		return &resp
	}
	if !conn.ExtendedSMTP() && len(params) > 0 {
		return &Response{Code: CodeParamsNotRecog, Message: "Parameters not recognized without ESMTP"}
	}
	if !utils.ContainsNonASCII(to.Mailbox.Domain) {
		to.Mailbox.Domain = normalizeHostname(to.Mailbox.Domain)
	}

	if utils.ContainsNonASCII(to.Mailbox.LocalPart) || utils.ContainsNonASCII(to.Mailbox.Domain) {
		if !mail.Envelope.SMTPUTF8 {
			return &Response{Code: CodeMailboxNameInval, EnhancedCode: ESCNonASCIINoSMTPUTF8, Message: "Address contains non-ASCII characters but SMTPUTF8 not requested"}
		}
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnRcptTo != nil {
		if err := s.config.Callbacks.OnRcptTo(conn.Context(), conn, to, params); err != nil {
			resp := ResponseMailboxNotFound(err.Error())
			return &resp
		}
	}

	mail.Envelope.To = append(mail.Envelope.To, Recipient{Address: to, Options: params})
	conn.setState(StateRcpt)

	return &Response{Code: CodeOK, EnhancedCode: ESCRecipientValid, Message: "OK"}
}

func (s *Server) handleData(conn *Session, reader *bufio.Reader, logger *slog.Logger) *Response {
	if conn.State() < StateRcpt {
		resp := ResponseBadSequence("Send RCPT first")
		return &resp
	}

	mail := conn.CurrentMail()
	if mail == nil || len(mail.Envelope.To) == 0 {
		resp := ResponseBadSequence("No recipients")
		return &resp
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnData != nil {
		if err := s.config.Callbacks.OnData(conn.Context(), conn); err != nil {
			resp := ResponseTransactionFailed(err.Error(), ESCPermFailure)
			return &resp
		}
	}

	conn.setState(StateData)

	s.writeResponse(conn, Response{Code: CodeStartMailInput, Message: "Start mail input; end with <CRLF>.<CRLF>"})

	if err := conn.conn.SetReadDeadline(time.Now().Add(s.config.DataTimeout)); err != nil {
		resp := ResponseLocalError("Internal error")
		return &resp
	}

	enforce7Bit := mail.Envelope.BodyType == BodyType7Bit
	maxLineLen := s.config.MaxLineLength
	if maxLineLen <= 0 {
		maxLineLen = RecommendedLineLength
	}
	data, err := lineio.ReadDataBlock(reader, maxLineLen, s.config.MaxMessageSize)
	if enforce7Bit && err == nil && utils.ContainsNonASCII(string(data)) {
		conn.resetTransaction()
		resp := ResponseTransactionFailed("Message contains 8-bit data but BODY=8BITMIME was not specified", ESCContentError)
		return &resp
	}
	if err != nil {
		conn.resetTransaction()
		switch {
		case errors.Is(err, lineio.ErrDataTooLarge):
			resp := ResponseExceededStorage("Message too large")
			return &resp
		case errors.Is(err, lineio.ErrBadLineEnding):
			return &Response{Code: CodeSyntaxError, EnhancedCode: ESCContentError, Message: "Message must use CRLF line endings"}
		case errors.Is(err, lineio.ErrLineTooLong):
			return &Response{Code: CodeSyntaxError, EnhancedCode: ESCContentError, Message: "Line length exceeds maximum allowed"}
		default:
			logger.Error("data read error", slog.Any("error", err))
			resp := ResponseLocalError("Error reading message")
			return &resp
		}
	}

	mail.Content.FromRaw(data)

	if err := detectLoop(mail, logger, s.config.MaxReceivedHeaders); err != nil {
		conn.resetTransaction()
		resp := ResponseTransactionFailed(err.Error(), ESCRoutingLoop)
		return &resp
	}

	mail.ID = ulid.Make().String()
	mail.ReceivedAt = time.Now()

	receivedHeader := conn.GenerateReceivedHeader("")
	receivedHeader.ID = mail.ID
	mail.Trace = append([]TraceField{receivedHeader}, mail.Trace...)
	mail.Content.Headers = append(Headers{{Name: "Received", Value: receivedHeader.String()}}, mail.Content.Headers...)

	var statuses *LMTPStatuses
	if s.config.Callbacks != nil && s.config.Callbacks.OnMessage != nil {
		var err error
		statuses, err = s.config.Callbacks.OnMessage(conn.Context(), conn, mail)
		if err != nil {
			conn.resetTransaction()
			resp := ResponseTransactionFailed(err.Error(), ESCPermFailure)
			return &resp
		}
	}

	conn.completeTransaction()

	logger.Info("message received",
		slog.String("mail_id", mail.ID),
		slog.String("from", mail.Envelope.From.String()),
		slog.Int("recipients", len(mail.Envelope.To)),
		slog.Int("size", len(data)),
	)

	if conn.IsLMTP() {
		s.writeLMTPStatuses(conn, mail, statuses)
		return nil
	}

	return &Response{Code: CodeOK, EnhancedCode: ESCSuccess, Message: fmt.Sprintf("OK, queued as %s [%s]", mail.ID, conn.Trace.ID)}
}

// writeLMTPStatuses emits one final reply per recipient (RFC 2033 §4.2). If
// the handler did not supply per-recipient statuses, the same success
// response is synthesized for every recipient. If it supplied fewer
// statuses than recipients, each recipient without one gets
// "500 Internal: missing LMTP response"; extra statuses are not sent.
func (s *Server) writeLMTPStatuses(conn *Session, mail *Mail, statuses *LMTPStatuses) {
	ok := Response{Code: CodeOK, EnhancedCode: ESCSuccess, Message: fmt.Sprintf("%s queued as %s", mail.Envelope.To[0].Address.String(), mail.ID)}

	if statuses == nil {
		for range mail.Envelope.To {
			s.writeResponse(conn, ok)
		}
		return
	}
	missing := Response{Code: CodeSyntaxError, Message: "Internal: missing LMTP response"}
	for i := range mail.Envelope.To {
		if i < len(statuses.Statuses) {
			s.writeResponse(conn, statuses.Statuses[i])
		} else {
			s.writeResponse(conn, missing)
		}
	}
}

func (s *Server) handleRset(conn *Session) *Response {
	if s.config.Callbacks != nil && s.config.Callbacks.OnReset != nil {
		s.config.Callbacks.OnReset(conn.Context(), conn)
	}
	conn.resetTransaction()
	resp := ResponseOK("OK", ESCSuccess)
	return &resp
}

func (s *Server) handleVrfy(conn *Session, args string) *Response {
	if args == "" {
		resp := ResponseSyntaxError("Syntax: VRFY <address>")
		return &resp
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnVerify != nil {
		addr, err := s.config.Callbacks.OnVerify(conn.Context(), conn, args)
		if err != nil {
			resp := ResponseMailboxNotFound(err.Error())
			return &resp
		}
		resp := ResponseOK(addr.String(), "")
		return &resp
	}

	resp := ResponseCannotVRFY("")
	return &resp
}

func (s *Server) handleExpn(conn *Session, args string) *Response {
	if args == "" {
		resp := ResponseSyntaxError("Syntax: EXPN <list>")
		return &resp
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnExpand != nil {
		addrs, err := s.config.Callbacks.OnExpand(conn.Context(), conn, args)
		if err != nil {
			resp := ResponseMailboxNotFound(err.Error())
			return &resp
		}
		lines := make([]string, len(addrs))
		for i, addr := range addrs {
			lines[i] = addr.String()
		}
		s.writeMultilineResponse(conn, CodeOK, lines)
		return nil
	}

	resp := ResponseCannotVRFY("Cannot EXPN list, but will accept message and attempt delivery")
	return &resp
}

// DefaultHelpURL is returned by the bundled HELP response when no
// Callbacks.OnHelp override is configured.
const DefaultHelpURL = "https://github.com/corvidmail/smtpd"

func (s *Server) handleHelp(conn *Session, topic string) *Response {
	topic = strings.TrimSpace(topic)

	if s.config.Callbacks != nil && s.config.Callbacks.OnHelp != nil {
		lines := s.config.Callbacks.OnHelp(conn.Context(), conn, topic)
		if len(lines) > 0 {
			s.writeMultilineResponse(conn, CodeHelpMessage, lines)
			return nil
		}
	}

	if topic == "" {
		lines := []string{
			"This is an ESMTP/LMTP server",
			"Supported commands: HELO EHLO LHLO MAIL RCPT DATA RSET NOOP QUIT HELP VRFY EXPN AUTH STARTTLS",
			"For more information, visit: " + DefaultHelpURL,
		}
		s.writeMultilineResponse(conn, CodeHelpMessage, lines)
		return nil
	}

	var helpText string
	switch strings.ToUpper(topic) {
	case "HELO":
		helpText = "HELO <hostname> - Identify yourself to the server"
	case "EHLO":
		helpText = "EHLO <hostname> - Extended HELLO, identify and request extensions"
	case "LHLO":
		helpText = "LHLO <hostname> - LMTP greeting, identify and request extensions"
	case "MAIL":
		helpText = "MAIL FROM:<address> [params] - Start a mail transaction"
	case "RCPT":
		helpText = "RCPT TO:<address> [params] - Specify a recipient"
	case "DATA":
		helpText = "DATA - Start message input, end with <CRLF>.<CRLF>"
	case "RSET":
		helpText = "RSET - Reset the current transaction"
	case "NOOP":
		helpText = "NOOP - No operation (keepalive)"
	case "QUIT":
		helpText = "QUIT - Close the connection"
	case "VRFY":
		helpText = "VRFY <address> - Verify an address (may be disabled)"
	case "EXPN":
		helpText = "EXPN <list> - Expand a mailing list (may be disabled)"
	case "HELP":
		helpText = "HELP [topic] - Show help information"
	case "STARTTLS":
		helpText = "STARTTLS - Upgrade connection to TLS"
	case "AUTH":
		helpText = "AUTH <mechanism> [initial-response] - Authenticate"
	default:
		return &Response{Code: CodeHelpMessage, Message: fmt.Sprintf("No help available for '%s'. Visit: %s", topic, DefaultHelpURL)}
	}

	return &Response{Code: CodeHelpMessage, Message: helpText}
}

func (s *Server) handleQuit(conn *Session) *Response {
	conn.setState(StateQuit)
	resp := ResponseServiceClosing(s.config.Hostname, fmt.Sprintf("Service closing transmission channel [%s]", conn.Trace.ID))
	return &resp
}

func (s *Server) handleStartTLS(conn *Session) *Response {
	if conn.State() < StateGreeted {
		resp := ResponseBadSequence("Send EHLO first")
		return &resp
	}
	if s.config.TLSConfig == nil {
		resp := ResponseCommandNotImplemented("STARTTLS")
		return &resp
	}
	if conn.IsTLS() {
		resp := ResponseBadSequence("TLS already active")
		return &resp
	}

	if s.config.Callbacks != nil && s.config.Callbacks.OnStartTLS != nil {
		if err := s.config.Callbacks.OnStartTLS(conn.Context(), conn); err != nil {
			resp := ResponseTransactionFailed(err.Error(), ESCPermFailure)
			return &resp
		}
	}

	s.writeResponse(conn, Response{Code: CodeServiceReady, Message: "Ready to start TLS"})

	if err := conn.UpgradeToTLS(s.config.TLSConfig); err != nil {
		return nil
	}

	return nil
}

// requireSTARTTLSWhitelist and requireAuthWhitelist are the commands a
// client may still issue while the require_starttls / require_auth gates
// are unsatisfied, mirroring aiosmtpd's single pre-dispatch STARTTLS check
// (smtp.py's main loop, which pushes 530 before routing to any smtp_<verb>).
var requireSTARTTLSWhitelist = map[Command]bool{
	CmdEhlo: true, CmdLhlo: true, CmdNoop: true, CmdRset: true,
	CmdStartTLS: true, CmdQuit: true, CmdHelp: true,
}

var requireAuthWhitelist = map[Command]bool{
	CmdAuth: true, CmdHelo: true, CmdEhlo: true, CmdLhlo: true,
	CmdNoop: true, CmdRset: true, CmdStartTLS: true, CmdQuit: true, CmdHelp: true,
}

// checkGlobalGates enforces require_starttls and auth_required before any
// command reaches its handler, so every verb (not just MAIL) is covered.
func (s *Server) checkGlobalGates(conn *Session, cmd Command) *Response {
	if s.config.RequireTLS && !conn.IsTLS() && !requireSTARTTLSWhitelist[cmd] {
		resp := Response{Code: CodeAuthRequiredCode, Message: "Must issue a STARTTLS command first"}
		return &resp
	}
	if s.config.RequireAuth && !conn.IsAuthenticated() && !requireAuthWhitelist[cmd] {
		resp := Response{Code: CodeAuthRequiredCode, Message: "Authentication required"}
		return &resp
	}
	return nil
}

// dispatch routes a parsed command to its handler. A nil *Response means the
// handler already wrote its own reply (multiline responses, STARTTLS, AUTH).
func (s *Server) dispatch(conn *Session, cmd Command, args string, reader *bufio.Reader, logger *slog.Logger) *Response {
	if resp := s.checkGlobalGates(conn, cmd); resp != nil {
		return resp
	}

	switch cmd {
	case CmdHelo:
		return s.handleHelo(conn, args)
	case CmdEhlo:
		return s.handleEhlo(conn, args)
	case CmdLhlo:
		return s.handleLhlo(conn, args)
	case CmdMail:
		return s.handleMail(conn, args)
	case CmdRcpt:
		return s.handleRcpt(conn, args)
	case CmdData:
		return s.handleData(conn, reader, logger)
	case CmdRset:
		return s.handleRset(conn)
	case CmdVrfy:
		return s.handleVrfy(conn, args)
	case CmdExpn:
		return s.handleExpn(conn, args)
	case CmdHelp:
		return s.handleHelp(conn, args)
	case CmdNoop:
		resp := ResponseOK("OK", "")
		return &resp
	case CmdQuit:
		return s.handleQuit(conn)
	case CmdAuth:
		return s.handleAuth(conn, args, reader)
	case CmdStartTLS:
		return s.handleStartTLS(conn)
	default:
		resp := ResponseCommandNotImplemented("command")
		return &resp
	}
}
