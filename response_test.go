package smtpd

import "testing"

func TestResponseStringWithEnhancedCode(t *testing.T) {
	r := Response{Code: CodeOK, EnhancedCode: ESCSuccess, Message: "OK"}
	if got, want := r.String(), "250 2.0.0 OK"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestResponseStringWithoutEnhancedCode(t *testing.T) {
	r := Response{Code: CodeOK, Message: "OK"}
	if got, want := r.String(), "250 OK"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestResponseErrorClassification(t *testing.T) {
	cases := []struct {
		code        SMTPCode
		isError     bool
		isTransient bool
		isPermanent bool
	}{
		{CodeOK, false, false, false},
		{CodeServiceNotAvail, true, true, false},
		{CodeSyntaxError, true, false, true},
	}

	for _, tc := range cases {
		r := Response{Code: tc.code}
		if r.IsError() != tc.isError {
			t.Errorf("code %d: IsError() = %v, want %v", tc.code, r.IsError(), tc.isError)
		}
		if r.IsTransientError() != tc.isTransient {
			t.Errorf("code %d: IsTransientError() = %v, want %v", tc.code, r.IsTransientError(), tc.isTransient)
		}
		if r.IsPermanentError() != tc.isPermanent {
			t.Errorf("code %d: IsPermanentError() = %v, want %v", tc.code, r.IsPermanentError(), tc.isPermanent)
		}
	}
}

func TestResponseBuilder(t *testing.T) {
	r := NewResponse(CodeMailboxNotFound).WithEnhancedCode("5.1.1").WithMessagef("no such user %s", "bob").Build()
	if got, want := r.String(), "550 5.1.1 no such user bob"; got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestResponseToError(t *testing.T) {
	ok := Response{Code: CodeOK, Message: "fine"}
	if err := ok.ToError(); err != nil {
		t.Errorf("expected nil error for OK response, got %v", err)
	}

	bad := Response{Code: CodeTransactionFail, Message: "nope"}
	if err := bad.ToError(); err == nil {
		t.Error("expected non-nil error for failing response")
	}
}
