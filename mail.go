package smtpd

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"github.com/corvidmail/smtpd/utils"
)

// BodyType specifies the encoding type of the message body per RFC 6152.
type BodyType string

const (
	// BodyType7Bit indicates a 7-bit ASCII message body (RFC 5321 compliant).
	BodyType7Bit BodyType = "7BIT"
	// BodyType8BitMIME indicates an 8-bit MIME message body (RFC 6152).
	BodyType8BitMIME BodyType = "8BITMIME"
)

// MailboxAddress represents an email address as per RFC 5321 Section 4.1.2.
// It supports both ASCII addresses (RFC 5321) and internationalized addresses (RFC 6531).
type MailboxAddress struct {
	// LocalPart is the portion before the @ sign.
	// May contain UTF-8 characters if SMTPUTF8 extension is used.
	LocalPart string `json:"local_part"`

	// Domain is the portion after the @ sign.
	// May be an internationalized domain name (IDN) in U-label or A-label form.
	Domain string `json:"domain"`

	// DisplayName is an optional human-readable name associated with the address.
	DisplayName string `json:"display_name,omitempty"`
}

// String returns the address in the standard "local-part@domain" format.
func (m MailboxAddress) String() string {
	if m.LocalPart == "" && m.Domain == "" {
		return ""
	}
	return m.LocalPart + "@" + m.Domain
}

// Path represents an SMTP forward-path or reverse-path as per RFC 5321 Section 4.1.2.
type Path struct {
	// Mailbox is the actual email address.
	Mailbox MailboxAddress `json:"mailbox"`

	// SourceRoutes contains optional source routing information (deprecated per RFC 5321).
	SourceRoutes []string `json:"source_routes,omitempty"`
}

// IsNull returns true if this is a null reverse-path (empty sender).
func (p Path) IsNull() bool {
	return p.Mailbox.LocalPart == "" && p.Mailbox.Domain == ""
}

// String returns the path in angle bracket format as used in SMTP commands.
func (p Path) String() string {
	if p.IsNull() {
		return "<>"
	}
	return "<" + p.Mailbox.String() + ">"
}

// Recipient represents a single recipient named in a RCPT TO command.
type Recipient struct {
	// Address is the recipient's email address (forward-path).
	Address Path `json:"address"`

	// Options holds any RCPT TO parameters accepted verbatim (beyond the
	// syntactically-validated ones the core itself understands).
	Options map[string]string `json:"options,omitempty"`
}

// Envelope represents the SMTP envelope as per RFC 5321 Section 2.3.1.
// The envelope is distinct from the message content and is transmitted
// via MAIL FROM and RCPT TO commands.
type Envelope struct {
	// From is the reverse-path (originator) specified in the MAIL FROM command.
	From Path `json:"from"`

	// To is the list of recipients specified via RCPT TO commands.
	To []Recipient `json:"to"`

	// BodyType indicates the body encoding type (RFC 6152 8BITMIME extension).
	BodyType BodyType `json:"body_type,omitempty"`

	// Size is the declared message size in octets (RFC 1870 SIZE extension).
	Size int64 `json:"size,omitempty"`

	// SMTPUTF8 indicates whether the message requires SMTPUTF8 extension (RFC 6531).
	SMTPUTF8 bool `json:"smtputf8,omitempty"`

	// RequireTLS records whether the REQUIRETLS parameter (RFC 8689) was set.
	RequireTLS bool `json:"require_tls,omitempty"`

	// Auth contains the authenticated identity, if SMTP AUTH was used.
	Auth string `json:"auth,omitempty"`

	// Options holds accepted-but-unvalidated MAIL FROM parameters; per §9
	// Open Question 1, the core only syntax-checks SIZE/BODY/SMTPUTF8/AUTH
	// and leaves semantic acceptance of anything else to the handler.
	Options map[string]string `json:"options,omitempty"`
}

// Header represents a single message header field as per RFC 5322.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is a collection of message headers with helper methods.
type Headers []Header

// Get returns the first header value with the given name (case-insensitive).
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// GetAll returns all header values with the given name (case-insensitive).
func (h Headers) GetAll(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Count returns the number of headers with the given name (case-insensitive).
func (h Headers) Count(name string) int {
	n := 0
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			n++
		}
	}
	return n
}

// Content represents the message content (header section + body), i.e.
// what follows the DATA command, normalized to CRLF line endings with
// dot-stuffing already reversed.
type Content struct {
	// Headers contains all message header fields per RFC 5322.
	Headers Headers `json:"headers"`

	// Body is the message body following the header/body separator.
	Body []byte `json:"body,omitempty"`

	// Original is the full normalized block exactly as received (headers
	// and body together), preserved alongside the split view for handlers
	// that want to relay or archive the message verbatim.
	Original []byte `json:"-"`
}

// FromRaw splits a normalized DATA-phase block into headers and body per
// RFC 5322 and records the original block.
func (c *Content) FromRaw(data []byte) {
	headers, body := parseMessageContent(data)
	c.Headers = headers
	c.Body = body
	c.Original = data
}

// TraceField represents a Received header for message tracing (RFC 5321 §4.4).
type TraceField struct {
	FromDomain string    `json:"from_domain,omitempty"`
	FromIP     string    `json:"from_ip,omitempty"`
	ByDomain   string    `json:"by_domain,omitempty"`
	Via        string    `json:"via,omitempty"`
	With       string    `json:"with,omitempty"`
	ID         string    `json:"id,omitempty"`
	For        string    `json:"for,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TLS        bool      `json:"tls,omitempty"`
}

// String renders the trace field as a Received header value, per RFC 5321 §4.4.
func (t TraceField) String() string {
	var b strings.Builder
	if t.FromDomain != "" {
		b.WriteString("from ")
		b.WriteString(t.FromDomain)
		if t.FromIP != "" {
			b.WriteString(" (")
			b.WriteString(t.FromIP)
			b.WriteString(")")
		}
		b.WriteString(" ")
	}
	if t.ByDomain != "" {
		b.WriteString("by ")
		b.WriteString(t.ByDomain)
		b.WriteString(" ")
	}
	if t.Via != "" {
		b.WriteString("via ")
		b.WriteString(t.Via)
		b.WriteString(" ")
	}
	if t.With != "" {
		b.WriteString("with ")
		b.WriteString(t.With)
		b.WriteString(" ")
	}
	if t.ID != "" {
		b.WriteString("id ")
		b.WriteString(t.ID)
		b.WriteString(" ")
	}
	if t.For != "" {
		b.WriteString("for ")
		b.WriteString(t.For)
		b.WriteString(" ")
	}
	b.WriteString(";\r\n\t")
	b.WriteString(t.Timestamp.Format(time.RFC1123Z))
	return strings.TrimSpace(b.String())
}

// Mail represents a complete mail object: an Envelope (transmitted via the
// SMTP command stream) plus Content (transmitted via DATA).
type Mail struct {
	Envelope   Envelope     `json:"envelope"`
	Content    Content      `json:"content"`
	Trace      []TraceField `json:"trace,omitempty"`
	ReceivedAt time.Time    `json:"received_at"`
	ID         string       `json:"id"`
}

// RequiresSMTPUTF8 reports whether this mail requires the SMTPUTF8 extension.
func (m *Mail) RequiresSMTPUTF8() bool {
	if m.Envelope.SMTPUTF8 {
		return true
	}
	if utils.ContainsNonASCII(m.Envelope.From.Mailbox.LocalPart) ||
		utils.ContainsNonASCII(m.Envelope.From.Mailbox.Domain) {
		return true
	}
	for _, rcpt := range m.Envelope.To {
		if utils.ContainsNonASCII(rcpt.Address.Mailbox.LocalPart) ||
			utils.ContainsNonASCII(rcpt.Address.Mailbox.Domain) {
			return true
		}
	}
	for _, h := range m.Content.Headers {
		if utils.ContainsNonASCII(h.Value) {
			return true
		}
	}
	return false
}

// Requires8BitMIME reports whether this mail requires the 8BITMIME extension.
func (m *Mail) Requires8BitMIME() bool {
	if m.Envelope.BodyType == BodyType8BitMIME {
		return true
	}
	for _, b := range m.Content.Body {
		if b > 127 {
			return true
		}
	}
	return false
}

// NewMail creates a new empty Mail object with initialized fields.
func NewMail() *Mail {
	return &Mail{
		Envelope: Envelope{
			To:      make([]Recipient, 0),
			Options: make(map[string]string),
		},
		Content: Content{
			Headers: make(Headers, 0),
		},
	}
}

// AddRecipient adds a recipient to the envelope.
func (m *Mail) AddRecipient(address MailboxAddress) {
	m.Envelope.To = append(m.Envelope.To, Recipient{Address: Path{Mailbox: address}})
}

// SetFrom sets the envelope sender (reverse-path).
func (m *Mail) SetFrom(address MailboxAddress) {
	m.Envelope.From = Path{Mailbox: address}
}

// SetNullSender sets a null reverse-path (for bounce messages).
func (m *Mail) SetNullSender() {
	m.Envelope.From = Path{}
}

// AddHeader adds a header to the message content.
func (m *Mail) AddHeader(name, value string) {
	m.Content.Headers = append(m.Content.Headers, Header{Name: name, Value: value})
}

// ParseAddress parses an email address string into a MailboxAddress.
// Supports both simple "user@domain" and RFC 5322 formatted addresses.
func ParseAddress(addr string) (MailboxAddress, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return MailboxAddress{}, err
	}

	address := parsed.Address
	var local, domain string
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			local = address[:i]
			domain = address[i+1:]
			break
		}
	}

	return MailboxAddress{
		LocalPart:   local,
		Domain:      domain,
		DisplayName: parsed.Name,
	}, nil
}

// ToJSON serializes the Mail object to JSON bytes.
func (m *Mail) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSONIndent serializes the Mail object to pretty-printed JSON bytes.
func (m *Mail) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON deserializes a Mail object from JSON bytes.
func FromJSON(data []byte) (*Mail, error) {
	var m Mail
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
