package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/tank-monitor/internal/status"
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
	"rfc3339": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
	"num": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tank Monitor</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: #b00; font-weight: bold; }
small { color: #777; }
</style>
</head>
<body>
<h1>Tank Monitor &mdash; {{.Device}}</h1>

<table>
<tr><th>Uptime</th><td>{{uptime .Snap.Uptime}}</td></tr>
<tr><th>Cycles</th><td>{{.Snap.Cycles}}</td></tr>
<tr><th>Last collection</th><td>{{rfc3339 .Snap.LastCollected}}</td></tr>
<tr><th>MQTT</th><td>{{if .Snap.MQTTConnected}}<span class="ok">connected</span>{{else}}<span class="bad">disconnected</span>{{end}} <small>{{.Snap.Config.Broker}}</small></td></tr>
</table>

<h2>Telemetry</h2>
<table>
{{range .Values}}<tr><th>{{.Key}}</th><td>{{num .Value}}</td></tr>
{{else}}<tr><td colspan="2"><small>no data yet</small></td></tr>
{{end}}</table>

<h2>Sensors</h2>
<table>
<tr><th>Sensor</th><td>reads / failures</td><td>last error</td></tr>
{{range .Snap.Bundles}}<tr>
<th>{{.Name}}{{if .Stale}} <span class="bad">rebuilding</span>{{end}}</th>
<td>{{.Reads}} / {{.Failures}}</td>
<td>{{if .LastError}}<span class="bad">{{.LastError}}</span>{{else}}<span class="ok">ok</span>{{end}}</td>
</tr>
{{end}}</table>

<p><small>session {{.Snap.Session}} &middot; <a href="/index.json">json</a> &middot; <a href="/metrics">metrics</a></small></p>
</body>
</html>
`

type keyValue struct {
	Key   string
	Value float64
}

type indexData struct {
	Device string
	Snap   status.Snapshot
	Values []keyValue
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	values := make([]keyValue, 0, len(snap.Values))
	for key, v := range snap.Values {
		values = append(values, keyValue{Key: key, Value: v})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Key < values[j].Key })

	// Render errors surface as a truncated page; nothing useful to do here.
	_ = indexTmpl.Execute(w, indexData{
		Device: snap.Config.Device,
		Snap:   snap,
		Values: values,
	})
}
