// Package smtpd implements an embeddable SMTP/LMTP server core: the
// RFC 5321/2033 command state machine, the SIZE, 8BITMIME, SMTPUTF8,
// STARTTLS, AUTH and ENHANCEDSTATUSCODES extensions, HAProxy PROXY protocol
// v1/v2 ingestion, and a pluggable handler interface (Callbacks) an embedder
// implements to decide what MAIL FROM/RCPT TO/DATA actually do.
//
// A server is assembled from a Config and a Callbacks struct of optional
// hook functions:
//
//	cfg := smtpd.DefaultConfig("mail.example.test")
//	cfg.Callbacks = &smtpd.Callbacks{OnMessage: deliver}
//	srv, err := smtpd.NewServer(cfg)
//
// The core validates envelope syntax, extension negotiation, and the
// command sequence; it makes no delivery decisions itself. Its only checks
// on message content are rejecting 8-bit data in a 7BIT transaction and the
// Received-header loop check (Config.MaxReceivedHeaders). Delivery
// decisions belong entirely to the Callbacks an embedder supplies.
package smtpd
