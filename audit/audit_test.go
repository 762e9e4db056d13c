package audit

import (
	"bytes"
	"testing"
	"time"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	want := &Record{
		ConnID:        "01J000000000000000000000",
		RemoteAddr:    "198.51.100.7:54321",
		ServerName:    "mx.example.test",
		StartedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EndedAt:       time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		LMTP:          false,
		TLS:           true,
		Authenticated: true,
		AuthIdentity:  "alice",
		MailFrom:      "alice@example.test",
		RcptTo:        []string{"bob@example.test", "carol@example.test"},
		MessageID:     "01J000000000000000000001",
		MessageSize:   4096,
		Accepted:      true,
		ErrorCount:    0,
	}

	if err := w.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(&buf)
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got.ConnID != want.ConnID || got.MailFrom != want.MailFrom || got.MessageSize != want.MessageSize {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.RcptTo) != len(want.RcptTo) {
		t.Fatalf("rcpt_to length = %d, want %d", len(got.RcptTo), len(want.RcptTo))
	}
	for i := range want.RcptTo {
		if got.RcptTo[i] != want.RcptTo[i] {
			t.Errorf("rcpt_to[%d] = %q, want %q", i, got.RcptTo[i], want.RcptTo[i])
		}
	}
	if !got.TLS || !got.Authenticated || !got.Accepted {
		t.Errorf("boolean fields not preserved: %+v", got)
	}
}

func TestWriterMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	for i := 0; i < 3; i++ {
		rec := &Record{ConnID: string(rune('a' + i)), RcptTo: []string{"x@example.test"}}
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	r := NewReader(&buf)
	for i := 0; i < 3; i++ {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if rec.ConnID != string(rune('a'+i)) {
			t.Errorf("record %d conn_id = %q, want %q", i, rec.ConnID, string(rune('a'+i)))
		}
	}
}
