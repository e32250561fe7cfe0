package logging

import (
	"net/http"
	"testing"
)

func TestRedactString(t *testing.T) {
	if f := RedactString("password", "hunter2"); f.String != redacted {
		t.Errorf("secret value leaked: %q", f.String)
	}
	if f := RedactString("password", ""); f.String != "" {
		t.Errorf("empty value should stay empty, got %q", f.String)
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret-token")
	h.Set("Cookie", "session=abc")
	h.Set("Content-Type", "application/json")
	h.Set("x-request-id", "r-1")

	out := RedactHeaders(h)
	if out["Authorization"] != redacted || out["Cookie"] != redacted {
		t.Errorf("credential headers not redacted: %v", out)
	}
	if out["Content-Type"] != "application/json" {
		t.Errorf("plain header mangled: %v", out)
	}
	for _, v := range out {
		if v == "Bearer secret-token" || v == "session=abc" {
			t.Fatalf("secret survived redaction: %v", out)
		}
	}
}
