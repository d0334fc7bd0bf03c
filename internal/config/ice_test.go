package config

import (
	"strings"
	"testing"
)

func TestParseICEServers(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServers(`[
	  {"urls": ["stun:stun.example.com:3478", " "]},
	  {"urls": "turn:turn.example.com:3478?transport=udp", "username": " user ", "credential": "pass"}
	]`)
	if err != nil {
		t.Fatalf("ParseICEServers: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("stun urls=%#v", got)
	}
	if servers[0].Credential != nil {
		t.Fatalf("stun credential=%#v, want nil", servers[0].Credential)
	}
	if servers[1].Username != "user" {
		t.Fatalf("username=%q", servers[1].Username)
	}
	if cred, ok := servers[1].Credential.(string); !ok || cred != "pass" {
		t.Fatalf("credential=%#v", servers[1].Credential)
	}
}

func TestParseICEServers_Rejects(t *testing.T) {
	t.Parallel()

	for name, raw := range map[string]string{
		"turn without creds": `[{"urls": ["turn:turn.example.com:3478?transport=udp"]}]`,
		"turns without user": `[{"urls": "turns:turn.example.com", "credential": "x"}]`,
		"http scheme":        `[{"urls": ["https://example.com"]}]`,
		"bad port":           `[{"urls": "stun:stun.example.com:notaport"}]`,
		"no urls":            `[{"username": "u"}]`,
		"urls wrong type":    `[{"urls": 3478}]`,
		"not json":           `stun:stun.example.com`,
	} {
		if _, err := ParseICEServers(raw); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestICEServersFromURLs(t *testing.T) {
	t.Parallel()

	servers, err := ICEServersFromURLs(
		"stun:a.example.com:3478, stun:b.example.com:3478",
		"turn:turn.example.com:3478?transport=udp",
		"user",
		"pass",
	)
	if err != nil {
		t.Fatalf("ICEServersFromURLs: %v", err)
	}
	if len(servers) != 2 || len(servers[0].URLs) != 2 {
		t.Fatalf("servers=%#v", servers)
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server has credentials: %#v", servers[0])
	}
	if servers[1].Username != "user" || servers[1].Credential.(string) != "pass" {
		t.Fatalf("turn server=%#v", servers[1])
	}
}

func TestICEServersFromURLs_TURNRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := ICEServersFromURLs("", "turn:turn.example.com:3478", "user", "")
	if err == nil || !strings.Contains(err.Error(), envTurnCredential) {
		t.Fatalf("err=%v", err)
	}
}

func TestICEInputs_DefaultsToPublicSTUN(t *testing.T) {
	t.Parallel()

	servers, err := iceInputs{}.servers()
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	if len(servers) != 1 || len(servers[0].URLs) != 1 || servers[0].URLs[0] != DefaultSTUNURL {
		t.Fatalf("servers=%#v, want default STUN", servers)
	}
}

func TestICEInputs_JSONWins(t *testing.T) {
	t.Parallel()

	servers, err := iceInputs{JSON: `[{"urls":"stun:a.example:3478"}]`, STUNURLs: "stun:b.example:3478"}.servers()
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:a.example:3478" {
		t.Fatalf("servers=%#v", servers)
	}
}

func TestICEInputs_JSONErrorNamesEnv(t *testing.T) {
	t.Parallel()

	_, err := iceInputs{JSON: "["}.servers()
	if err == nil || !strings.HasPrefix(err.Error(), envICEServersJSON) {
		t.Fatalf("err=%v", err)
	}
}
