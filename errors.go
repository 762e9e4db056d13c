package smtpd

import "errors"

var (
	ErrServerClosed     = errors.New("smtpd: server closed")
	ErrLineTooLong      = errors.New("smtpd: line too long")
	ErrTooManyRecipents = errors.New("smtpd: too many recipients")
	ErrMessageTooLarge  = errors.New("smtpd: message too large")
	Err8BitIn7BitMode   = errors.New("smtpd: 8-bit data in 7BIT mode")
	ErrTimeout          = errors.New("smtpd: timeout waiting for data from client")
	ErrTLSRequired      = errors.New("smtpd: TLS required")
	ErrAuthRequired     = errors.New("smtpd: authentication required")
	ErrInvalidCommand   = errors.New("smtpd: invalid command")
	ErrLoopDetected     = errors.New("smtpd: mail loop detected (too many Received headers)")
	ErrProxyProtocol    = errors.New("smtpd: invalid PROXY protocol header")
)
