// Package audit writes a compact, handler-independent activity trail for a
// server: one record per completed connection, encoded with MessagePack via
// tinylib/msgp's runtime Writer/Reader so a record can be decoded without
// reflection or a schema registry.
package audit

import (
	"fmt"
	"io"
	"time"

	"github.com/tinylib/msgp/msgp"
)

// Record summarizes a single connection's lifetime for the audit trail. It
// is deliberately flatter than Session/Mail: an embedder tees activity here
// independent of whatever it does in its own Callbacks hooks.
type Record struct {
	ConnID       string
	RemoteAddr   string
	ServerName   string
	StartedAt    time.Time
	EndedAt      time.Time
	LMTP         bool
	TLS          bool
	Authenticated bool
	AuthIdentity string
	MailFrom     string
	RcptTo       []string
	MessageID    string
	MessageSize  int64
	Accepted     bool
	ErrorCount   int
}

const recordFields = 13

// EncodeMsg writes r to w as a 13-field MessagePack map.
func (r *Record) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(recordFields); err != nil {
		return err
	}
	fields := []struct {
		key string
		fn  func() error
	}{
		{"conn_id", func() error { return w.WriteString(r.ConnID) }},
		{"remote_addr", func() error { return w.WriteString(r.RemoteAddr) }},
		{"server_name", func() error { return w.WriteString(r.ServerName) }},
		{"started_at", func() error { return w.WriteTime(r.StartedAt) }},
		{"ended_at", func() error { return w.WriteTime(r.EndedAt) }},
		{"lmtp", func() error { return w.WriteBool(r.LMTP) }},
		{"tls", func() error { return w.WriteBool(r.TLS) }},
		{"authenticated", func() error { return w.WriteBool(r.Authenticated) }},
		{"auth_identity", func() error { return w.WriteString(r.AuthIdentity) }},
		{"mail_from", func() error { return w.WriteString(r.MailFrom) }},
		{"message_id", func() error { return w.WriteString(r.MessageID) }},
		{"message_size", func() error { return w.WriteInt64(r.MessageSize) }},
		{"accepted", func() error { return w.WriteBool(r.Accepted) }},
	}
	for _, f := range fields {
		if err := w.WriteString(f.key); err != nil {
			return err
		}
		if err := f.fn(); err != nil {
			return fmt.Errorf("audit: encode %s: %w", f.key, err)
		}
	}
	return nil
}

// DecodeMsg reads a Record previously written by EncodeMsg. rcptTo is
// decoded separately via a sibling array entry written by a Writer wrapping
// the same stream (see Writer.Append).
func (r *Record) DecodeMsg(rd *msgp.Reader) error {
	sz, err := rd.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < sz; i++ {
		key, err := rd.ReadString()
		if err != nil {
			return err
		}
		switch key {
		case "conn_id":
			r.ConnID, err = rd.ReadString()
		case "remote_addr":
			r.RemoteAddr, err = rd.ReadString()
		case "server_name":
			r.ServerName, err = rd.ReadString()
		case "started_at":
			r.StartedAt, err = rd.ReadTime()
		case "ended_at":
			r.EndedAt, err = rd.ReadTime()
		case "lmtp":
			r.LMTP, err = rd.ReadBool()
		case "tls":
			r.TLS, err = rd.ReadBool()
		case "authenticated":
			r.Authenticated, err = rd.ReadBool()
		case "auth_identity":
			r.AuthIdentity, err = rd.ReadString()
		case "mail_from":
			r.MailFrom, err = rd.ReadString()
		case "message_id":
			r.MessageID, err = rd.ReadString()
		case "message_size":
			r.MessageSize, err = rd.ReadInt64()
		case "accepted":
			r.Accepted, err = rd.ReadBool()
		default:
			err = rd.Skip()
		}
		if err != nil {
			return fmt.Errorf("audit: decode %s: %w", key, err)
		}
	}
	return nil
}

// Writer appends Records to an underlying stream as a sequence of
// self-delimiting MessagePack values (map, recipient array, error count).
type Writer struct {
	mw *msgp.Writer
}

// NewWriter wraps w for appending audit records. Callers own w's lifetime;
// Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{mw: msgp.NewWriter(w)}
}

// Append writes one record followed by its RcptTo array as a second
// top-level value and its ErrorCount as a third, then flushes so the record
// is durable immediately.
func (a *Writer) Append(r *Record) error {
	if err := r.EncodeMsg(a.mw); err != nil {
		return err
	}
	if err := a.mw.WriteArrayHeader(uint32(len(r.RcptTo))); err != nil {
		return err
	}
	for _, addr := range r.RcptTo {
		if err := a.mw.WriteString(addr); err != nil {
			return err
		}
	}
	if err := a.mw.WriteInt(r.ErrorCount); err != nil {
		return err
	}
	return a.mw.Flush()
}

// Close flushes any buffered bytes.
func (a *Writer) Close() error {
	return a.mw.Flush()
}

// Reader reads Records written by Writer.
type Reader struct {
	mr *msgp.Reader
}

// NewReader wraps r for reading audit records written by a Writer.
func NewReader(r io.Reader) *Reader {
	return &Reader{mr: msgp.NewReader(r)}
}

// Next decodes the next record, returning io.EOF once the stream is
// exhausted at a record boundary.
func (a *Reader) Next() (*Record, error) {
	rec := &Record{}
	if err := rec.DecodeMsg(a.mr); err != nil {
		return nil, err
	}

	n, err := a.mr.ReadArrayHeader()
	if err != nil {
		return nil, fmt.Errorf("audit: read rcpt_to array: %w", err)
	}
	rec.RcptTo = make([]string, n)
	for i := range rec.RcptTo {
		rec.RcptTo[i], err = a.mr.ReadString()
		if err != nil {
			return nil, fmt.Errorf("audit: read rcpt_to[%d]: %w", i, err)
		}
	}

	rec.ErrorCount, err = a.mr.ReadInt()
	if err != nil {
		return nil, fmt.Errorf("audit: read error_count: %w", err)
	}

	return rec, nil
}
