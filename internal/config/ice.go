package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "CALLROOM_ICE_SERVERS_JSON"

	envStunURLs       = "CALLROOM_STUN_URLS"
	envTurnURLs       = "CALLROOM_TURN_URLS"
	envTurnUsername   = "CALLROOM_TURN_USERNAME"
	envTurnCredential = "CALLROOM_TURN_CREDENTIAL"

	// DefaultSTUNURL is handed to browsers when no ICE servers are configured.
	DefaultSTUNURL = "stun:stun.l.google.com:19302"
)

// DefaultICEServers is the list served when nothing is configured.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: []string{DefaultSTUNURL}}}
}

// iceInputs are the raw ICE settings gathered from env and flags. JSON, when
// set, replaces the URL lists entirely.
type iceInputs struct {
	JSON           string
	STUNURLs       string
	TURNURLs       string
	TURNUsername   string
	TURNCredential string
}

func (in iceInputs) servers() ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(in.JSON); raw != "" {
		servers, err := ParseICEServers(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	servers, err := ICEServersFromURLs(in.STUNURLs, in.TURNURLs, in.TURNUsername, in.TURNCredential)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return DefaultICEServers(), nil
	}
	return servers, nil
}

// ParseICEServers decodes a browser-style RTCIceServer list. "urls" may be a
// single string or an array.
func ParseICEServers(raw string) ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		urls, err := decodeURLs(e.URLs)
		if err != nil {
			return nil, fmt.Errorf("iceServers[%d].urls: %w", i, err)
		}
		s := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(e.Username)}
		if strings.TrimSpace(e.Credential) != "" {
			s.Credential = e.Credential
		}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

func decodeURLs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if raw[0] == '"' {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		list = []string{one}
	} else if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	urls := list[:0]
	for _, u := range list {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// ICEServersFromURLs builds at most two servers: one for the comma-separated
// STUN URLs and one for the TURN URLs, which require both credentials.
func ICEServersFromURLs(stunURLs, turnURLs, username, credential string) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitList(stunURLs); len(urls) > 0 {
		s := webrtc.ICEServer{URLs: urls}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, s)
	}

	if urls := splitList(turnURLs); len(urls) > 0 {
		username, credential = strings.TrimSpace(username), strings.TrimSpace(credential)
		if username == "" || credential == "" {
			return nil, fmt.Errorf("%s and %s are required with %s", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		s := webrtc.ICEServer{URLs: urls, Username: username, Credential: credential}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, s)
	}

	return servers, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// checkICEServer parses every URL with pion's STUN/TURN URI parser so that a
// typo fails at startup instead of inside the browser's RTCPeerConnection.
func checkICEServer(s webrtc.ICEServer) error {
	if len(s.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCredential := false
	for _, raw := range s.URLs {
		u, err := stun.ParseURI(raw)
		if err != nil {
			return fmt.Errorf("invalid ICE url %q: %w", raw, err)
		}
		switch u.Scheme {
		case stun.SchemeTypeTURN, stun.SchemeTypeTURNS:
			needsCredential = true
		case stun.SchemeTypeSTUN, stun.SchemeTypeSTUNS:
		default:
			return fmt.Errorf("unsupported ICE url scheme %q", raw)
		}
	}

	if !needsCredential {
		return nil
	}
	if s.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, _ := s.Credential.(string); strings.TrimSpace(cred) == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}
