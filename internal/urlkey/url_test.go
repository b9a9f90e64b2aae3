package urlkey

import "testing"

func TestParseCanonicalizesCaseSchemeAndDefaultPort(t *testing.T) {
	got, err := Parse("http://user@Example.COM:443/%7Efoo?b=2&a=1")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got.Host() != "example.com" {
		t.Errorf("Host() = %q, want example.com", got.Host())
	}
	if got.Port() != "" {
		t.Errorf("Port() = %q, want empty (443 is default)", got.Port())
	}
	if got.Path() != "/~foo" {
		t.Errorf("Path() = %q, want /~foo", got.Path())
	}
	if got.Query() != "b=2&a=1" {
		t.Errorf("Query() = %q, want unsorted b=2&a=1 before Normalize", got.Query())
	}

	norm := got.Normalize()
	if norm.Query() != "a=1&b=2" {
		t.Errorf("Normalize().Query() = %q, want a=1&b=2", norm.Query())
	}
}

func TestParseResolvesDotSegmentsPreservingTrailingSlash(t *testing.T) {
	got, err := Parse("http://example.com/foo/./b/baz/../")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got.Path() != "/foo/b/" {
		t.Errorf("Path() = %q, want /foo/b/", got.Path())
	}
}

func TestNormalizeStripsTrailingSlashExceptRoot(t *testing.T) {
	got, err := Parse("https://example.com/a/b/")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if norm := got.Normalize(); norm.Path() != "/a/b" {
		t.Errorf("Normalize().Path() = %q, want /a/b", norm.Path())
	}

	root, err := Parse("https://example.com/")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if norm := root.Normalize(); norm.Path() != "/" {
		t.Errorf("Normalize().Path() = %q, want /", norm.Path())
	}
}

func TestParseRejectsNonHTTPScheme(t *testing.T) {
	_, err := Parse("ftp://example.com/file")
	var invalid *InvalidURLError
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !asInvalidURLError(err, &invalid) {
		t.Fatalf("error is not *InvalidURLError: %v", err)
	}
	if invalid.Kind != InvalidScheme {
		t.Errorf("Kind = %v, want InvalidScheme", invalid.Kind)
	}
}

func TestParseRejectsEmptyHost(t *testing.T) {
	_, err := Parse("https:///path")
	var invalid *InvalidURLError
	if !asInvalidURLError(err, &invalid) {
		t.Fatalf("error is not *InvalidURLError: %v", err)
	}
	if invalid.Kind != InvalidHost {
		t.Errorf("Kind = %v, want InvalidHost", invalid.Kind)
	}
}

func TestParseRejectsBadPort(t *testing.T) {
	_, err := Parse("https://example.com:notaport/")
	var invalid *InvalidURLError
	if !asInvalidURLError(err, &invalid) {
		t.Fatalf("error is not *InvalidURLError: %v", err)
	}
	if invalid.Kind != InvalidPort {
		t.Errorf("Kind = %v, want InvalidPort", invalid.Kind)
	}
}

func TestParseKeepsNonDefaultPort(t *testing.T) {
	got, err := Parse("https://example.com:8443/x")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got.Port() != "8443" {
		t.Errorf("Port() = %q, want 8443", got.Port())
	}
	if got.String() != "https://example.com:8443/x" {
		t.Errorf("String() = %q", got.String())
	}
}

func TestJoinResolvesRelativeLinks(t *testing.T) {
	base, err := Parse("https://example.com/docs/index.html")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	cases := map[string]string{
		"page.html":        "https://example.com/docs/page.html",
		"/abs/path":        "https://example.com/abs/path",
		"../up.html":       "https://example.com/up.html",
		"?q=1":             "https://example.com/docs/index.html?q=1",
		"https://other.io": "https://other.io/",
	}
	for ref, want := range cases {
		got, err := base.Join(ref)
		if err != nil {
			t.Errorf("Join(%q) returned error: %v", ref, err)
			continue
		}
		if got.String() != want {
			t.Errorf("Join(%q) = %q, want %q", ref, got.String(), want)
		}
	}
}

func TestJoinRejectsNonHTTPScheme(t *testing.T) {
	base, err := Parse("https://example.com/")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	_, err = base.Join("mailto:a@example.com")
	var invalid *InvalidURLError
	if !asInvalidURLError(err, &invalid) {
		t.Fatalf("expected InvalidURLError, got %v", err)
	}
	if invalid.Kind != InvalidScheme {
		t.Errorf("Kind = %v, want InvalidScheme", invalid.Kind)
	}
}

func TestParseIsIdempotentThroughRender(t *testing.T) {
	inputs := []string{
		"HTTP://Example.com:80/a/b?z=1&y=2",
		"https://example.com/a/./b/../c",
		"https://example.com",
	}
	for _, in := range inputs {
		first, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", in, err)
		}
		canon := first.Normalize()
		second, err := Parse(canon.String())
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", canon.String(), err)
		}
		if second.Normalize().String() != canon.String() {
			t.Errorf("round trip mismatch: %q -> %q -> %q", in, canon.String(), second.Normalize().String())
		}
	}
}

func asInvalidURLError(err error, target **InvalidURLError) bool {
	if e, ok := err.(*InvalidURLError); ok {
		*target = e
		return true
	}
	return false
}
