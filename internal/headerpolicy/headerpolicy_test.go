package headerpolicy

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want Classification
	}{
		{"Cookie", Auth},
		{"authorization", Auth},
		{"Proxy-Authorization", Auth},
		{"X-Csrf-Token", Auth},
		{"x-csrf-token", Auth},
		{"X-Auth-Foo", Auth},
		{"x-auth-bar", Auth},
		{"Set-Cookie", Auth},
		{"Referer", Sensitive},
		{"Origin", Sensitive},
		{"User-Agent", Sensitive},
		{"Accept", Safe},
		{"Content-Type", Safe},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.name); got != tc.want {
				t.Fatalf("Classify(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestRetain(t *testing.T) {
	t.Run("include_all_keeps_everything", func(t *testing.T) {
		if !Retain("Accept", true) {
			t.Fatalf("expected retain when includeAll=true")
		}
	})
	t.Run("default_drops_safe_headers", func(t *testing.T) {
		if Retain("Accept", false) {
			t.Fatalf("expected drop for safe header when includeAll=false")
		}
	})
	t.Run("default_keeps_auth_and_sensitive", func(t *testing.T) {
		if !Retain("Cookie", false) {
			t.Fatalf("expected retain for auth header")
		}
		if !Retain("Referer", false) {
			t.Fatalf("expected retain for sensitive header")
		}
	})
}

func TestRedactDeterministic(t *testing.T) {
	a := Redact("Authorization", "Bearer abc123")
	b := Redact("Authorization", "Bearer abc123")
	if a != b {
		t.Fatalf("expected deterministic redaction, got %q vs %q", a, b)
	}
}

func TestRedactDiffersOnValue(t *testing.T) {
	a := Redact("Authorization", "Bearer abc123")
	b := Redact("Authorization", "Bearer xyz789")
	if a == b {
		t.Fatalf("expected different redaction for different values")
	}
}

func TestRedactHeaders(t *testing.T) {
	in := map[string]string{
		"Cookie":     "s=1",
		"Content-Type": "application/json",
	}
	out := RedactHeaders(in)
	if out["Content-Type"] != "application/json" {
		t.Fatalf("expected safe header untouched, got %q", out["Content-Type"])
	}
	if out["Cookie"] == "s=1" {
		t.Fatalf("expected cookie value redacted")
	}
}
