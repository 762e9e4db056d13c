package sasl

import (
	"bytes"
	"encoding/base64"
)

// Plain implements the PLAIN mechanism. The authzid/authcid/password triple
// arrives base64-encoded, NUL-separated, in a single line — as an initial
// response on AUTH PLAIN <resp>, or as the first line of the challenge
// exchange when the client omits it.
type Plain struct {
	creds *Credentials
}

// NewPlain returns a fresh PLAIN mechanism instance.
func NewPlain() *Plain {
	return &Plain{}
}

func (p *Plain) Name() string { return "PLAIN" }

func (p *Plain) Start(initialResponse string) (challenge string, done bool, err error) {
	if initialResponse == "" {
		return "", false, nil
	}
	return p.decode(initialResponse)
}

func (p *Plain) Next(response string) (challenge string, done bool, err error) {
	return p.decode(response)
}

func (p *Plain) decode(response string) (challenge string, done bool, err error) {
	if response == "*" {
		return "", true, ErrAuthenticationCancelled
	}

	raw, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		return "", true, ErrInvalidBase64
	}

	parts := bytes.SplitN(raw, []byte{0}, 3)
	if len(parts) != 3 {
		return "", true, ErrInvalidFormat
	}
	authzid, authcid, passwd := string(parts[0]), string(parts[1]), string(parts[2])
	if authcid == "" {
		return "", true, ErrInvalidFormat
	}

	p.creds = &Credentials{
		AuthorizationID:  authzid,
		AuthenticationID: authcid,
		Password:         passwd,
	}
	return "", true, nil
}

func (p *Plain) Credentials() *Credentials { return p.creds }
