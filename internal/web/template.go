package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ago": func(now, then time.Time) string {
		return now.Sub(then).Truncate(time.Second).String()
	},
	"sorted": sortedCounts,
}).Parse(indexHTML))

type countRow struct {
	Name  string
	Count uint64
}

func sortedCounts(m map[string]uint64) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, countRow{Name: k, Count: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>BT Sensor Relay</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.weak { color: orange; }
</style>
</head>
<body>
<h1>BT Sensor Relay</h1>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Gateway topic</th><td>{{.Config.SubscribeTopic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Pipeline</h2>
<table>
<tr><th>Envelopes</th><td>{{.Counts.Envelopes}}</td></tr>
<tr><th>Malformed envelopes</th><td>{{.Counts.Malformed}}</td></tr>
{{range sorted .Counts.DecodeFailures}}<tr><th>Decode failed: {{.Name}}</th><td>{{.Count}}</td></tr>
{{end}}{{range sorted .Counts.Decoded}}<tr><th>Decoded: {{.Name}}</th><td>{{.Count}}</td></tr>
{{end}}<tr><th>Duplicates suppressed</th><td>{{.Counts.Suppressed}}</td></tr>
<tr><th>Published</th><td>{{.Counts.Published}}</td></tr>
<tr><th>Buffered while offline</th><td>{{.Counts.Buffered}}</td></tr>
<tr><th>Publish errors</th><td>{{.Counts.PublishErrors}}</td></tr>
</table>

<h2>Sensors</h2>
{{if .Readings}}<table>
<tr><th>Topic</th><td><b>Kind</b></td><td><b>RSSI</b></td><td><b>Age</b></td></tr>
{{range .Readings}}<tr><th>{{.Topic}}</th><td>{{.Kind}}</td><td{{if lt .RSSI -85}} class="weak"{{end}}>{{.RSSI}}</td><td>{{ago $.Now .At}}</td></tr>
{{end}}</table>{{else}}<p>No readings published yet.</p>{{end}}

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Buffer time</th><td>{{.Config.BufferTimeMs}}ms</td></tr>
<tr><th>PIR window</th><td>{{.Config.PirWindowMs}}ms</td></tr>
<tr><th>Counter window</th><td>{{.Config.CounterWindow}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
