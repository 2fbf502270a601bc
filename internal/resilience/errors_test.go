package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestClassify_TypedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"not_found", NewNotFoundError(errors.New("gone"), "https://x/doc.pdf"), ClassNotFound},
		{"blocked", NewBlockedError(errors.New("access denied"), 403), ClassBlocked},
		{"transient", NewTransientError(errors.New("bad gateway"), 502), ClassTransient},
		{"integrity", &IntegrityError{Err: errors.New("orphan snapshot")}, ClassIntegrity},
		{"persistence", &PersistenceError{Err: errors.New("tx failed")}, ClassPersistence},
		{"plain", errors.New("something odd"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_WrappedTypedError(t *testing.T) {
	inner := NewBlockedError(errors.New("challenge page"), 200)
	wrapped := fmt.Errorf("fetch chunk: %w", inner)
	if got := Classify(wrapped); got != ClassBlocked {
		t.Errorf("Classify(wrapped) = %v, want ClassBlocked", got)
	}
}

func TestClassify_NotFoundWinsOverBlocked(t *testing.T) {
	// A not-found wrapped by a blocked wrapper still aborts.
	err := NewNotFoundError(NewBlockedError(errors.New("nested"), 403), "u")
	if got := Classify(err); got != ClassNotFound {
		t.Errorf("Classify() = %v, want ClassNotFound", got)
	}
}

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 502)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("gateway timeout"), 504)
	wrapped := fmt.Errorf("api call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	err := errors.New("invalid input: missing field")
	if IsTransient(err) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("ECONNRESET should be transient")
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		err := errors.New(p)
		if !IsTransient(err) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestIsBlockedHTTPStatus(t *testing.T) {
	blocked := []int{403, 429, 503}
	for _, code := range blocked {
		if !IsBlockedHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be a block status", code)
		}
	}

	notBlocked := []int{200, 302, 400, 404, 408, 500, 502, 504}
	for _, code := range notBlocked {
		if IsBlockedHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be a block status", code)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 500, 502, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}

	permanent := []int{200, 201, 400, 401, 404, 405, 409, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestBlockedError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	be := NewBlockedError(inner, 429)

	if !errors.Is(be, inner) {
		t.Error("BlockedError.Unwrap should return the inner error")
	}

	if be.StatusCode != 429 {
		t.Errorf("expected StatusCode 429, got %d", be.StatusCode)
	}
}

func TestNotFoundError_CarriesURL(t *testing.T) {
	nfe := NewNotFoundError(errors.New("gone"), "https://x/AttachLive/doc.pdf")
	if nfe.URL != "https://x/AttachLive/doc.pdf" {
		t.Errorf("unexpected URL %q", nfe.URL)
	}
	if nfe.Error() != "gone" {
		t.Errorf("expected error message %q, got %q", "gone", nfe.Error())
	}
}
