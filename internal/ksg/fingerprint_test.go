package ksg

import "testing"

func TestNormalizeHost(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.Example.com/login", "example.com"},
		{"http://example.com:8080/x", "example.com"},
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
	}
	for _, c := range cases {
		if got := NormalizeHost(c.in); got != c.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

const loginHTML = `
<html><body><form action="/login" method="post">
  <input type="email" name="email" id="email">
  <input type="password" name="password">
  <input type="hidden" name="csrf" value="x">
  <select name="remember"><option>yes</option></select>
  <button type="submit" id="login-btn">Sign in</button>
</form></body></html>`

func TestBuildFingerprint(t *testing.T) {
	fp := BuildFingerprint("https://www.example.com/login", loginHTML, "login")

	if fp.Host != "example.com" {
		t.Errorf("host = %q", fp.Host)
	}
	if fp.FormType != "login" {
		t.Errorf("form type = %q", fp.FormType)
	}
	if fp.FieldTypes["email"] != 1 || fp.FieldTypes["password"] != 1 || fp.FieldTypes["select"] != 1 {
		t.Errorf("field types = %v", fp.FieldTypes)
	}
	if _, ok := fp.FieldTypes["hidden"]; ok {
		t.Error("hidden inputs must not count as fields")
	}
	if fp.SubmitHint != "#login-btn" {
		t.Errorf("submit hint = %q", fp.SubmitHint)
	}
}

func TestBuildFingerprintEmptyAndBrokenHTML(t *testing.T) {
	fp := BuildFingerprint("https://example.com", "", "")
	if len(fp.FieldTypes) != 0 {
		t.Errorf("empty html field types = %v", fp.FieldTypes)
	}
	// html.Parse is forgiving; truncated markup still yields what it can.
	fp = BuildFingerprint("https://example.com", "<form><input type='text'", "")
	if fp.Host != "example.com" {
		t.Errorf("host = %q", fp.Host)
	}
}

func TestOverlapScore(t *testing.T) {
	a := map[string]int{"email": 1, "password": 1}
	if got := overlapScore(a, a); got != 2.0 {
		t.Errorf("identical = %v, want 2", got)
	}
	if got := overlapScore(a, map[string]int{"text": 3}); got != 0 {
		t.Errorf("disjoint = %v, want 0", got)
	}
	half := overlapScore(a, map[string]int{"email": 1, "text": 1})
	if half <= 0 || half >= 2 {
		t.Errorf("partial = %v, want strictly between 0 and 2", half)
	}
	if got := overlapScore(nil, nil); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestFuzzyMatchField(t *testing.T) {
	targets := []string{"Email-Address", "full_name", "tel"}

	if got := fuzzyMatchField("emailaddress", targets); got != "Email-Address" {
		t.Errorf("exact normalized = %q", got)
	}
	if got := fuzzyMatchField("email", targets); got != "Email-Address" {
		t.Errorf("containment = %q", got)
	}
	if got := fuzzyMatchField("fax", targets); got != "" {
		t.Errorf("no match = %q", got)
	}
	if got := fuzzyMatchField("", targets); got != "" {
		t.Errorf("empty source = %q", got)
	}
}
