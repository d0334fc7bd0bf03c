package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Status is a snapshot of a relay's HTTP surface.
type Status struct {
	Server    string
	Healthy   bool
	Ready     bool
	ReadyErr  string
	Commit    string
	BuildTime string

	ClientCount int
	Capacity    int
	RoomReady   bool
}

// BaseURL normalizes a relay address to an http(s) URL without a trailing
// slash.
func BaseURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", fmt.Errorf("server URL is empty")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL has no host")
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

// Probe queries /healthz, /readyz, /version and /room. Only a failure to
// reach the relay at all is an error; unhealthy answers are reported in
// the returned Status.
func Probe(ctx context.Context, hc *http.Client, server string) (Status, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	base, err := BaseURL(server)
	if err != nil {
		return Status{}, err
	}
	st := Status{Server: base}

	var health struct {
		OK bool `json:"ok"`
	}
	code, err := getJSON(ctx, hc, base+"/healthz", &health)
	if err != nil {
		return Status{}, err
	}
	st.Healthy = code == http.StatusOK && health.OK

	var ready struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if _, err := getJSON(ctx, hc, base+"/readyz", &ready); err == nil {
		st.Ready = ready.Ready
		st.ReadyErr = ready.Error
	}

	var version struct {
		Commit    string `json:"commit"`
		BuildTime string `json:"buildTime"`
	}
	if code, err := getJSON(ctx, hc, base+"/version", &version); err == nil && code == http.StatusOK {
		st.Commit = version.Commit
		st.BuildTime = version.BuildTime
	}

	var room struct {
		ClientCount int  `json:"clientCount"`
		Ready       bool `json:"ready"`
		Capacity    int  `json:"capacity"`
	}
	if code, err := getJSON(ctx, hc, base+"/room", &room); err == nil && code == http.StatusOK {
		st.ClientCount = room.ClientCount
		st.Capacity = room.Capacity
		st.RoomReady = room.Ready
	}

	return st, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return resp.StatusCode, fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return resp.StatusCode, nil
}
