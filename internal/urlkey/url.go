// Package urlkey implements the canonical URL value type shared by the
// frontier, robots and store packages. A URL is parsed once at the edge
// (fetch response, seed list, discovered link) and carried as this
// immutable value from then on so no two packages re-derive slightly
// different notions of "the same page".
package urlkey

import (
	"bytes"
	"encoding/gob"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// URL is an immutable, canonical HTTP(S) locator. The zero value is not
// valid; construct one with Parse or Join.
type URL struct {
	host  string
	port  string
	path  string
	query string
}

// HostKey identifies the per-host politeness bucket a URL belongs to.
// Two URLs with the same HostKey are served by the same scheduler slot.
type HostKey struct {
	Host string
	Port string
}

// Host returns the lowercased, IDNA-normalized hostname.
func (u URL) Host() string { return u.host }

// Port returns the non-default port, or "" when the URL uses the
// default port for https (443) or the legacy default for http (80).
func (u URL) Port() string { return u.port }

// Path returns the canonical, percent-normalized path. It is always
// non-empty and always begins with "/".
func (u URL) Path() string { return u.path }

// Query returns the raw query string without the leading "?", or ""
// when the URL carries no query component.
func (u URL) Query() string { return u.query }

// Key returns the politeness bucket this URL belongs to.
func (u URL) Key() HostKey { return HostKey{Host: u.host, Port: u.port} }

// gobURL mirrors URL with exported fields so it can round-trip through
// encoding/gob; URL's own fields stay unexported to keep the value type
// immutable from outside the package.
type gobURL struct {
	Host  string
	Port  string
	Path  string
	Query string
}

// GobEncode implements gob.GobEncoder.
func (u URL) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(gobURL{Host: u.host, Port: u.port, Path: u.path, Query: u.query})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (u *URL) GobDecode(data []byte) error {
	var g gobURL
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	u.host, u.port, u.path, u.query = g.Host, g.Port, g.Path, g.Query
	return nil
}

// String renders the canonical form of u: https://host[:port]path[?query].
func (u URL) String() string {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(u.host)
	if u.port != "" {
		b.WriteByte(':')
		b.WriteString(u.port)
	}
	b.WriteString(u.path)
	if u.query != "" {
		b.WriteByte('?')
		b.WriteString(u.query)
	}
	return b.String()
}

// Parse canonicalizes raw into a URL. Only http and https schemes are
// accepted; http is rewritten to https for rendering purposes while the
// original scheme plays no further role — the crawler never speaks
// plaintext HTTP to an origin that also answers on 443 under the same
// name.
func Parse(raw string) (URL, error) {
	cleaned := stripControlAndWhitespace(raw)

	scheme, rest, ok := splitScheme(cleaned)
	if !ok {
		return URL{}, invalidScheme(raw)
	}
	scheme = strings.ToLower(scheme)
	if scheme != "http" && scheme != "https" {
		return URL{}, invalidScheme(raw)
	}

	parsed, err := url.Parse(scheme + "://" + rest)
	if err != nil {
		// net/url rejects a non-numeric port itself; report it as a
		// port error rather than a host error.
		if strings.Contains(err.Error(), "invalid port") {
			return URL{}, invalidPort(raw)
		}
		return URL{}, invalidHost(raw)
	}
	return fromParsed(parsed, raw)
}

// Join resolves ref against the document identified by u, the way a
// browser resolves an <a href> found on a page served at u, and
// canonicalizes the result. A ref that carries its own scheme must use
// http or https.
func (u URL) Join(ref string) (URL, error) {
	cleaned := stripControlAndWhitespace(ref)

	if scheme, _, ok := splitScheme(cleaned); ok {
		lower := strings.ToLower(scheme)
		if lower != "http" && lower != "https" {
			return URL{}, invalidScheme(ref)
		}
	}

	base, err := url.Parse(u.String())
	if err != nil {
		return URL{}, invalidHost(u.String())
	}
	refURL, err := url.Parse(cleaned)
	if err != nil {
		return URL{}, invalidHost(ref)
	}

	resolved := base.ResolveReference(refURL)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return URL{}, invalidScheme(ref)
	}
	return fromParsed(resolved, ref)
}

// Normalize returns the form of u used for deduplication: the trailing
// slash is stripped (except for the root path) and query tokens are
// sorted lexicographically so that "?b=2&a=1" and "?a=1&b=2" collapse
// to the same key.
func (u URL) Normalize() URL {
	n := u

	if n.path != "/" {
		n.path = strings.TrimSuffix(n.path, "/")
		if n.path == "" {
			n.path = "/"
		}
	}

	if n.query != "" {
		tokens := strings.Split(n.query, "&")
		sort.Strings(tokens)
		n.query = strings.Join(tokens, "&")
	}

	return n
}

func fromParsed(parsed *url.URL, original string) (URL, error) {
	hostname := parsed.Hostname()
	if hostname == "" {
		return URL{}, invalidHost(original)
	}
	asciiHost, err := idna.Lookup.ToASCII(strings.ToLower(hostname))
	if err != nil {
		return URL{}, invalidHost(original)
	}

	port := parsed.Port()
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return URL{}, invalidPort(original)
		}
		if port == "80" || port == "443" {
			port = ""
		}
	}

	path := normalizePercentEscapes(parsed.EscapedPath())
	path = removeDotSegments(path)
	if path == "" {
		path = "/"
	}

	query := normalizePercentEscapes(parsed.RawQuery)

	return URL{host: asciiHost, port: port, path: path, query: query}, nil
}

// splitScheme extracts a leading "scheme:" from s. It does not validate
// the scheme against http/https; callers do that so they can report the
// right InvalidURLKind.
func splitScheme(s string) (scheme, rest string, ok bool) {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return "", "", false
	}
	for j := 0; j < i; j++ {
		c := s[j]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isSchemeChar := isAlpha || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
		if j == 0 && !isAlpha {
			return "", "", false
		}
		if !isSchemeChar {
			return "", "", false
		}
	}
	return s[:i], s[i+1:], true
}

// stripControlAndWhitespace removes ASCII control characters and
// whitespace from raw wherever they occur, matching the tolerant
// handling browsers apply to copy-pasted or log-scraped URLs.
func stripControlAndWhitespace(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c <= 0x20 || c == 0x7f {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isUnreservedByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	default:
		return false
	}
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

const upperHex = "0123456789ABCDEF"

// normalizePercentEscapes decodes percent-escaped unreserved characters
// back to their literal form and uppercases the hex digits of whatever
// escapes remain, so "%7E" and "%7e" and "~" all converge on "~" while
// "%2F" stays "%2F" rather than becoming a path separator.
func normalizePercentEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := hexVal(s[i+1])
			lo, okLo := hexVal(s[i+2])
			if okHi && okLo {
				decoded := byte(hi<<4 | lo)
				if isUnreservedByte(decoded) {
					b.WriteByte(decoded)
				} else {
					b.WriteByte('%')
					b.WriteByte(upperHex[hi])
					b.WriteByte(upperHex[lo])
				}
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// removeDotSegments implements RFC 3986 section 5.2.4 over a
// percent-normalized path, preserving a trailing slash the way
// path.Clean deliberately does not (we need "/foo/./b/baz/../" to
// resolve to "/foo/b/", not "/foo/b").
func removeDotSegments(path string) string {
	input := path
	var output []string

	for input != "" {
		switch {
		case strings.HasPrefix(input, "../"):
			input = input[3:]
		case strings.HasPrefix(input, "./"):
			input = input[2:]
		case strings.HasPrefix(input, "/./"):
			input = "/" + input[3:]
		case input == "/.":
			input = "/"
		case strings.HasPrefix(input, "/../"):
			input = "/" + input[4:]
			if len(output) > 0 {
				output = output[:len(output)-1]
			}
		case input == "/..":
			input = "/"
			if len(output) > 0 {
				output = output[:len(output)-1]
			}
		case input == "." || input == "..":
			input = ""
		default:
			start := 0
			if input[0] == '/' {
				start = 1
			}
			if idx := strings.IndexByte(input[start:], '/'); idx == -1 {
				output = append(output, input)
				input = ""
			} else {
				output = append(output, input[:start+idx])
				input = input[start+idx:]
			}
		}
	}

	return strings.Join(output, "")
}
