package smtpd

import (
	"fmt"
	"strings"
)

// SMTPCode is a three-digit SMTP/LMTP reply code (RFC 5321 §4.2).
type SMTPCode int

const (
	CodeSystemStatus     SMTPCode = 211
	CodeHelpMessage      SMTPCode = 214
	CodeServiceReady     SMTPCode = 220
	CodeServiceClosing   SMTPCode = 221
	CodeAuthSuccess      SMTPCode = 235
	CodeOK               SMTPCode = 250
	CodeWillForward      SMTPCode = 251
	CodeCannotVRFY       SMTPCode = 252
	CodeAuthContinue     SMTPCode = 334
	CodeStartMailInput   SMTPCode = 354
	CodeServiceNotAvail  SMTPCode = 421
	CodeMailboxBusy      SMTPCode = 450
	CodeLocalError       SMTPCode = 451
	CodeInsufficientStor SMTPCode = 452
	CodeUnableToAccom    SMTPCode = 455
	CodeSyntaxError      SMTPCode = 500
	CodeSyntaxErrorParam SMTPCode = 501
	CodeCommandNotImpl   SMTPCode = 502
	CodeBadSequence      SMTPCode = 503
	CodeParameterNotImpl SMTPCode = 504
	CodeAuthRequiredCode SMTPCode = 530
	CodeAuthMechWeak     SMTPCode = 534
	CodeAuthCredsInvalid SMTPCode = 535
	CodeEncryptionNeeded SMTPCode = 538
	CodeMailboxNotFound  SMTPCode = 550
	CodeUserNotLocal     SMTPCode = 551
	CodeExceededStorage  SMTPCode = 552
	CodeMailboxNameInval SMTPCode = 553
	CodeTransactionFail  SMTPCode = 554
	CodeParamsNotRecog   SMTPCode = 555
)

// EnhancedCode is an RFC 3463/2034 enhanced status code, e.g. "5.5.1".
type EnhancedCode string

const (
	ESCSuccess                EnhancedCode = "2.0.0"
	ESCAddressValid           EnhancedCode = "2.1.0"
	ESCRecipientValid         EnhancedCode = "2.1.5"
	ESCSecuritySuccess        EnhancedCode = "2.7.0"
	ESCTempMailboxUnavail     EnhancedCode = "4.2.1"
	ESCTempTooManyRcpt        EnhancedCode = "4.5.3"
	ESCTempAuthFailed         EnhancedCode = "4.7.0"
	ESCBadCommandSequence     EnhancedCode = "5.5.1"
	ESCSyntaxError            EnhancedCode = "5.5.2"
	ESCTooManyRecipients      EnhancedCode = "5.5.3"
	ESCInvalidArgs            EnhancedCode = "5.5.4"
	ESCInvalidCommand         EnhancedCode = "5.5.1"
	ESCContentError           EnhancedCode = "5.6.0"
	ESCNonASCIINoSMTPUTF8     EnhancedCode = "5.6.7"
	ESCMessageTooLarge        EnhancedCode = "5.3.4"
	ESCRoutingLoop            EnhancedCode = "5.4.6"
	ESCSecurityError          EnhancedCode = "5.7.1"
	ESCAuthCredentialsInvalid EnhancedCode = "5.7.8"
	ESCEncryptionRequired     EnhancedCode = "5.7.10"
	ESCRequireTLSRequired     EnhancedCode = "5.7.11"
	ESCPermFailure            EnhancedCode = "5.0.0"
)

// Response is a single (or first line of a multi-line) SMTP reply.
type Response struct {
	Code         SMTPCode
	EnhancedCode EnhancedCode
	Message      string
}

// String renders the response as a single reply line (without CRLF).
func (r Response) String() string {
	if r.EnhancedCode != "" {
		return fmt.Sprintf("%d %s %s", r.Code, r.EnhancedCode, r.Message)
	}
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

func (r Response) IsError() bool {
	return r.Code >= 400
}

func (r Response) IsTransientError() bool {
	return r.Code >= 400 && r.Code < 500
}

func (r Response) IsPermanentError() bool {
	return r.Code >= 500
}

func (r Response) ToError() error {
	if !r.IsError() {
		return nil
	}
	return fmt.Errorf("%s", r.String())
}

// ResponseBuilder builds a Response fluently.
type ResponseBuilder struct {
	code         SMTPCode
	enhancedCode EnhancedCode
	message      string
}

func NewResponse(code SMTPCode) *ResponseBuilder {
	return &ResponseBuilder{code: code}
}

func (b *ResponseBuilder) WithEnhancedCode(ec EnhancedCode) *ResponseBuilder {
	b.enhancedCode = ec
	return b
}

func (b *ResponseBuilder) WithMessage(msg string) *ResponseBuilder {
	b.message = msg
	return b
}

func (b *ResponseBuilder) WithMessagef(format string, args ...any) *ResponseBuilder {
	b.message = fmt.Sprintf(format, args...)
	return b
}

func (b *ResponseBuilder) Build() Response {
	return Response{Code: b.code, EnhancedCode: b.enhancedCode, Message: b.message}
}

func ResponseSyntaxError(msg string) Response {
	return Response{Code: CodeSyntaxError, EnhancedCode: ESCSyntaxError, Message: msg}
}

func ResponseBadSequence(msg string) Response {
	return Response{Code: CodeBadSequence, EnhancedCode: ESCBadCommandSequence, Message: msg}
}

func ResponseCommandNotImplemented(what string) Response {
	return Response{Code: CodeCommandNotImpl, EnhancedCode: ESCInvalidCommand, Message: fmt.Sprintf("%s not implemented", what)}
}

func ResponseMailboxNotFound(msg string) Response {
	return Response{Code: CodeMailboxNotFound, EnhancedCode: "5.1.1", Message: msg}
}

func ResponseCannotVRFY(msg string) Response {
	if msg == "" {
		msg = "Cannot VRFY user, but will accept message and attempt delivery"
	}
	return Response{Code: CodeCannotVRFY, Message: msg}
}

func ResponseTransactionFailed(msg string, ec EnhancedCode) Response {
	return Response{Code: CodeTransactionFail, EnhancedCode: ec, Message: msg}
}

func ResponseExceededStorage(msg string) Response {
	return Response{Code: CodeExceededStorage, EnhancedCode: ESCMessageTooLarge, Message: msg}
}

func ResponseLocalError(msg string) Response {
	return Response{Code: CodeLocalError, EnhancedCode: "4.3.0", Message: msg}
}

func ResponseOK(msg string, ec EnhancedCode) Response {
	return Response{Code: CodeOK, EnhancedCode: ec, Message: msg}
}

func ResponseServiceReady(hostname, msg string) Response {
	return Response{Code: CodeServiceReady, Message: strings.TrimSpace(hostname + " " + msg)}
}

func ResponseServiceClosing(hostname, msg string) Response {
	return Response{Code: CodeServiceClosing, Message: strings.TrimSpace(hostname + " " + msg)}
}
