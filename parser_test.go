package smtpd

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line    string
		wantCmd Command
		wantArg string
		wantErr bool
	}{
		{"EHLO mail.example.test", CmdEhlo, "mail.example.test", false},
		{"helo localhost", CmdHelo, "localhost", false},
		{"MAIL FROM:<a@b.test> SIZE=100", CmdMail, "FROM:<a@b.test> SIZE=100", false},
		{"RCPT TO:<a@b.test>", CmdRcpt, "TO:<a@b.test>", false},
		{"DATA", CmdData, "", false},
		{"QUIT", CmdQuit, "", false},
		{"StartTLS", CmdStartTLS, "", false},
		{"LHLO client.test", CmdLhlo, "client.test", false},
		{"BOGUS", CmdUnknown, "", true},
	}

	for _, tc := range cases {
		cmd, args, err := parseCommand(tc.line)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseCommand(%q): expected error", tc.line)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCommand(%q): unexpected error: %v", tc.line, err)
			continue
		}
		if cmd != tc.wantCmd {
			t.Errorf("parseCommand(%q): cmd = %v, want %v", tc.line, cmd, tc.wantCmd)
		}
		if args != tc.wantArg {
			t.Errorf("parseCommand(%q): args = %q, want %q", tc.line, args, tc.wantArg)
		}
	}
}

func TestParsePathWithParams(t *testing.T) {
	path, params, err := parsePathWithParams("FROM:<alice@example.test> SIZE=1024 BODY=8BITMIME")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path.Mailbox.String() != "alice@example.test" {
		t.Errorf("mailbox = %q, want alice@example.test", path.Mailbox.String())
	}
	if params["SIZE"] != "1024" || params["BODY"] != "8BITMIME" {
		t.Errorf("params = %+v", params)
	}
}

func TestParsePathWithParamsNullSender(t *testing.T) {
	path, _, err := parsePathWithParams("FROM:<>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !path.IsNull() {
		t.Errorf("expected null path, got %+v", path)
	}
}

func TestParsePathWithParamsDuplicateParam(t *testing.T) {
	_, _, err := parsePathWithParams("FROM:<a@b.test> SIZE=1 SIZE=2")
	if err == nil {
		t.Fatal("expected duplicate parameter error")
	}
}

func TestParsePathWithParamsMissingBrackets(t *testing.T) {
	_, _, err := parsePathWithParams("FROM:a@b.test")
	if err == nil {
		t.Fatal("expected missing angle brackets error")
	}
}

func TestParseMessageContentSplitsHeadersAndBody(t *testing.T) {
	data := []byte("Subject: hi\r\nFrom: a@b.test\r\n\r\nbody text\r\n")
	headers, body := parseMessageContent(data)

	if headers.Get("Subject") != "hi" {
		t.Errorf("Subject header = %q, want hi", headers.Get("Subject"))
	}
	if headers.Get("From") != "a@b.test" {
		t.Errorf("From header = %q, want a@b.test", headers.Get("From"))
	}
	if string(body) != "body text\r\n" {
		t.Errorf("body = %q", string(body))
	}
}

func TestParseMessageContentNoHeaders(t *testing.T) {
	data := []byte("just a body\r\n")
	headers, body := parseMessageContent(data)
	if headers != nil {
		t.Errorf("expected nil headers, got %+v", headers)
	}
	if string(body) != string(data) {
		t.Errorf("body = %q, want %q", string(body), string(data))
	}
}

func TestParseMessageContentFoldedHeader(t *testing.T) {
	data := []byte("Subject: line one\r\n continued\r\n\r\nbody\r\n")
	headers, _ := parseMessageContent(data)
	if got := headers.Get("Subject"); got != "line one continued" {
		t.Errorf("Subject = %q, want %q", got, "line one continued")
	}
}
