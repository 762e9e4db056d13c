package smtpd

import "golang.org/x/net/idna"

// idnaProfile converts internationalized domain labels in HELO/EHLO/LHLO
// arguments to their ASCII (A-label) form, per RFC 6531 §3.1's requirement
// that servers be able to compare UTF8SMTP domains against
// locally-configured ASCII ones. MAIL/RCPT address domains are passed
// through it only when they are already ASCII; a non-ASCII address domain
// is kept in the form the client sent.
var idnaProfile = idna.New(idna.MapForLookup(), idna.Transitional(false))

// normalizeHostname converts host to its ASCII-compatible encoding. It
// returns the original string unchanged if host is not a valid IDN (e.g. an
// address literal or a hostname idna rejects), since HELO/EHLO accept
// address literals verbatim per RFC 5321 §4.1.4.
func normalizeHostname(host string) string {
	if host == "" {
		return host
	}
	ascii, err := idnaProfile.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}
