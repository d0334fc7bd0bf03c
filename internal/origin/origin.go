// Package origin implements the browser Origin policy shared by the
// signaling socket and the JSON endpoints.
//
// With no allow-list configured only same-host pages may connect: the
// Origin's host[:port] must equal the request's Host header, default ports
// being equivalent. Schemes are not compared, so a relay behind a TLS
// terminating proxy still accepts its own https page.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Null is the opaque origin browsers send for sandboxed and file:// pages.
const Null = "null"

// Origin is a parsed, canonical browser origin.
type Origin struct {
	// Scheme is "http", "https", or empty for the null origin.
	Scheme string
	// Host is the lower-cased host with brackets around IPv6 literals and the
	// port only when it is not the scheme default.
	Host string
}

func (o Origin) IsNull() bool { return o.Scheme == "" }

func (o Origin) String() string {
	if o.IsNull() {
		return Null
	}
	return o.Scheme + "://" + o.Host
}

// Parse validates an Origin header value (or a configured origin) and returns
// its canonical form. Paths other than "/" and any query, fragment or
// userinfo make it invalid.
func Parse(raw string) (Origin, bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return Origin{}, false
	case Null:
		return Origin{}, true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return Origin{}, false
	}
	if u.Path != "" && u.Path != "/" {
		return Origin{}, false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, false
	}
	host, ok := canonicalHost(u.Host, scheme)
	if !ok {
		return Origin{}, false
	}
	return Origin{Scheme: scheme, Host: host}, true
}

// Policy decides which origins may use the relay. The zero value is the
// same-host policy.
type Policy struct {
	any     bool
	allowed map[string]struct{}
}

// NewPolicy builds a policy from configured origins. Entries are "*" or
// origins in any form Parse accepts; unparseable entries never match.
func NewPolicy(allowed []string) Policy {
	var p Policy
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "*" {
			p.any = true
			continue
		}
		o, ok := Parse(entry)
		if !ok {
			continue
		}
		if p.allowed == nil {
			p.allowed = make(map[string]struct{})
		}
		p.allowed[o.String()] = struct{}{}
	}
	return p
}

// SameHostOnly reports whether no allow-list was configured.
func (p Policy) SameHostOnly() bool {
	return !p.any && len(p.allowed) == 0
}

// Allows reports whether o may use a relay reached as requestHost.
func (p Policy) Allows(o Origin, requestHost string) bool {
	if p.any {
		return true
	}
	if !p.SameHostOnly() {
		_, ok := p.allowed[o.String()]
		return ok
	}
	if o.IsNull() {
		return false
	}
	host, ok := canonicalHost(strings.TrimSpace(requestHost), o.Scheme)
	return ok && host == o.Host
}

// Check applies the policy to r. Requests without an Origin header come from
// non-browser clients and are allowed; o is then the zero Origin and present
// is false.
func (p Policy) Check(r *http.Request) (o Origin, present, allowed bool) {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return Origin{}, false, true
	}
	o, ok := Parse(header)
	if !ok {
		return Origin{}, true, false
	}
	return o, true, p.Allows(o, r.Host)
}

// canonicalHost lower-cases an authority, validates its port and drops the
// port when it is the default for scheme.
func canonicalHost(authority, scheme string) (string, bool) {
	hostname, port, ok := splitHostPort(strings.ToLower(authority))
	if !ok || hostname == "" {
		return "", false
	}

	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		} else {
			port = strconv.FormatUint(n, 10)
		}
	}

	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port != "" {
		return hostname + ":" + port, true
	}
	return hostname, true
}

// splitHostPort splits host[:port]. IPv6 literals must be bracketed; the
// returned hostname has the brackets removed. The port is not validated.
func splitHostPort(authority string) (hostname, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}

	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		hostname, rest := authority[1:end], authority[end+1:]
		switch {
		case rest == "":
			return hostname, "", true
		case len(rest) > 1 && rest[0] == ':':
			return hostname, rest[1:], true
		default:
			return "", "", false
		}
	}

	hostname, port, found := strings.Cut(authority, ":")
	if !found {
		return authority, "", true
	}
	if hostname == "" || port == "" || strings.Contains(port, ":") {
		return "", "", false
	}
	return hostname, port, true
}
