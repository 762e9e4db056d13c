package sasl

import "encoding/base64"

type loginState int

const (
	loginAwaitingUsername loginState = iota
	loginAwaitingPassword
	loginDone
)

const (
	// loginUsernamePrompt is "Username:" base64-encoded.
	loginUsernamePrompt = "VXNlcm5hbWU6"
	// loginPasswordPrompt is "Password:" base64-encoded.
	loginPasswordPrompt = "UGFzc3dvcmQ6"
)

// Login implements the non-standard but widely deployed LOGIN mechanism:
// a two-round username/password challenge exchange, with no authzid.
type Login struct {
	state    loginState
	username string
	creds    *Credentials
}

// NewLogin returns a fresh LOGIN mechanism instance.
func NewLogin() *Login {
	return &Login{state: loginAwaitingUsername}
}

func (l *Login) Name() string { return "LOGIN" }

func (l *Login) Start(initialResponse string) (challenge string, done bool, err error) {
	return loginUsernamePrompt, false, nil
}

func (l *Login) Next(response string) (challenge string, done bool, err error) {
	if response == "*" {
		l.state = loginDone
		return "", true, ErrAuthenticationCancelled
	}

	switch l.state {
	case loginAwaitingUsername:
		decoded, err := base64.StdEncoding.DecodeString(response)
		if err != nil {
			l.state = loginDone
			return "", true, ErrInvalidBase64
		}
		if len(decoded) == 0 {
			l.state = loginDone
			return "", true, ErrInvalidFormat
		}
		l.username = string(decoded)
		l.state = loginAwaitingPassword
		return loginPasswordPrompt, false, nil

	case loginAwaitingPassword:
		decoded, err := base64.StdEncoding.DecodeString(response)
		if err != nil {
			l.state = loginDone
			return "", true, ErrInvalidBase64
		}
		l.creds = &Credentials{
			AuthenticationID: l.username,
			Password:         string(decoded),
		}
		l.state = loginDone
		return "", true, nil

	default:
		return "", true, ErrInvalidFormat
	}
}

func (l *Login) Credentials() *Credentials { return l.creds }
