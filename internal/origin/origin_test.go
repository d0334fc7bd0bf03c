package origin

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type vectorsFile struct {
	Schema int `json:"schema"`
	Parse  []struct {
		Name    string `json:"name"`
		Raw     string `json:"raw"`
		Origin  string `json:"origin"`
		Invalid bool   `json:"invalid"`
	} `json:"parse"`
	Allow []struct {
		Name           string   `json:"name"`
		Origin         string   `json:"origin"`
		RequestHost    string   `json:"requestHost"`
		AllowedOrigins []string `json:"allowedOrigins"`
		Allowed        bool     `json:"allowed"`
	} `json:"allow"`
}

func loadVectors(t *testing.T) vectorsFile {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "origin_vectors.json"))
	if err != nil {
		t.Fatalf("read vectors: %v", err)
	}
	var vf vectorsFile
	if err := json.Unmarshal(b, &vf); err != nil {
		t.Fatalf("parse vectors: %v", err)
	}
	if vf.Schema != 1 {
		t.Fatalf("vectors schema=%d, want 1", vf.Schema)
	}
	return vf
}

func TestParseVectors(t *testing.T) {
	for _, v := range loadVectors(t).Parse {
		t.Run(v.Name, func(t *testing.T) {
			o, ok := Parse(v.Raw)
			if v.Invalid {
				if ok {
					t.Fatalf("Parse(%q)=%q, want invalid", v.Raw, o)
				}
				return
			}
			if !ok {
				t.Fatalf("Parse(%q) invalid", v.Raw)
			}
			if o.String() != v.Origin {
				t.Fatalf("Parse(%q)=%q, want %q", v.Raw, o, v.Origin)
			}
		})
	}
}

func TestPolicyVectors(t *testing.T) {
	for _, v := range loadVectors(t).Allow {
		t.Run(v.Name, func(t *testing.T) {
			o, ok := Parse(v.Origin)
			if !ok {
				t.Fatalf("Parse(%q) invalid", v.Origin)
			}
			if got := NewPolicy(v.AllowedOrigins).Allows(o, v.RequestHost); got != v.Allowed {
				t.Fatalf("Allows=%v, want %v", got, v.Allowed)
			}
		})
	}
}

func TestOriginParts(t *testing.T) {
	o, ok := Parse("http://[::1]:3000")
	if !ok || o.Scheme != "http" || o.Host != "[::1]:3000" || o.IsNull() {
		t.Fatalf("Parse=%+v ok=%v", o, ok)
	}
	n, ok := Parse("null")
	if !ok || !n.IsNull() || n.Host != "" {
		t.Fatalf("Parse(null)=%+v ok=%v", n, ok)
	}
}

func TestPolicy_SameHostOnly(t *testing.T) {
	if !NewPolicy(nil).SameHostOnly() {
		t.Fatal("empty policy is not same-host")
	}
	if NewPolicy([]string{"*"}).SameHostOnly() {
		t.Fatal("wildcard policy reported same-host")
	}
	// Entries that do not parse are ignored.
	p := NewPolicy([]string{"not an origin"})
	if !p.SameHostOnly() {
		t.Fatal("policy of unparseable entries is not same-host")
	}
	o, _ := Parse("http://relay.local")
	if !p.Allows(o, "relay.local") {
		t.Fatal("same-host policy rejected own origin")
	}
}

func TestPolicy_Check(t *testing.T) {
	p := NewPolicy(nil)

	r := httptest.NewRequest("GET", "http://relay.local:3000/ws", nil)
	if _, present, allowed := p.Check(r); present || !allowed {
		t.Fatalf("no Origin: present=%v allowed=%v", present, allowed)
	}

	r.Header.Set("Origin", "http://relay.local:3000")
	if o, present, allowed := p.Check(r); !present || !allowed || o.String() != "http://relay.local:3000" {
		t.Fatalf("same host: origin=%q present=%v allowed=%v", o, present, allowed)
	}

	r.Header.Set("Origin", "http://evil.local")
	if _, present, allowed := p.Check(r); !present || allowed {
		t.Fatalf("cross origin: present=%v allowed=%v", present, allowed)
	}

	r.Header.Set("Origin", "javascript:alert(1)")
	if _, present, allowed := p.Check(r); !present || allowed {
		t.Fatalf("garbage origin: present=%v allowed=%v", present, allowed)
	}
}
