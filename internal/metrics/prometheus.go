package metrics

import (
	"bytes"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// Gauge is a point-in-time value sampled on every scrape, such as the number
// of room members.
type Gauge struct {
	Name  string
	Help  string
	Value func() int
}

// family groups event counters that share a name prefix into one Prometheus
// metric with an "event" label.
type family struct {
	prefix string
	name   string
	help   string
}

var families = []family{
	{prefix: "endpoint_", name: "callroom_endpoint_events_total", help: "Signaling endpoint lifecycle events."},
	{prefix: "frame_", name: "callroom_frame_events_total", help: "Inbound signaling frames by outcome."},
	{prefix: "ai_", name: "callroom_ai_events_total", help: "AI bridge requests, replies and fallbacks."},
	{prefix: "", name: "callroom_events_total", help: "Other relay events."},
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// PrometheusHandler serves the counters in m and the given gauges in
// Prometheus' text exposition format.
func PrometheusHandler(m *Metrics, gauges ...Gauge) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		writeCounters(&buf, m.Snapshot())
		for _, g := range gauges {
			writeHeader(&buf, g.Name, g.Help, "gauge")
			buf.WriteString(g.Name + " " + strconv.Itoa(g.Value()) + "\n")
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

func writeCounters(buf *bytes.Buffer, snap map[string]uint64) {
	grouped := make(map[string][]string, len(families))
	for _, event := range slices.Sorted(maps.Keys(snap)) {
		f := familyOf(event)
		grouped[f.name] = append(grouped[f.name], event)
	}

	for _, f := range families {
		events := grouped[f.name]
		if len(events) == 0 {
			continue
		}
		writeHeader(buf, f.name, f.help, "counter")
		for _, event := range events {
			label := strings.TrimPrefix(event, f.prefix)
			buf.WriteString(f.name + `{event="` + labelEscaper.Replace(label) + `"} `)
			buf.WriteString(strconv.FormatUint(snap[event], 10) + "\n")
		}
	}
}

func familyOf(event string) family {
	for _, f := range families {
		if strings.HasPrefix(event, f.prefix) {
			return f
		}
	}
	return families[len(families)-1]
}

func writeHeader(buf *bytes.Buffer, name, help, typ string) {
	buf.WriteString("# HELP " + name + " " + help + "\n")
	buf.WriteString("# TYPE " + name + " " + typ + "\n")
}
