package callback

import "html/template"

type resultPage struct {
	Service string
	Success bool
	Detail  string
}

var resultTemplate = template.Must(template.New("result").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Success}}Connection successful{{else}}Connection failed{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 3rem; color: #282a36; }
.ok { color: #2e7d32; }
.fail { color: #c62828; }
</style>
</head>
<body>
{{if .Success}}
<h1 class="ok">Connection successful</h1>
<p>{{.Service}} is connected. This window will close shortly.</p>
{{else}}
<h1 class="fail">Connection failed</h1>
<p>{{.Service}} could not be connected.{{with .Detail}} ({{.}}){{end}}</p>
{{end}}
<script>setTimeout(function () { window.close(); }, 1500);</script>
</body>
</html>
`))

type dashboardRow struct {
	Service string
	Status  string
	Pending bool
}

type dashboardPage struct {
	Scope string
	Rows  []dashboardRow
}

// The dashboard is also the host window; the browser layer reports its
// focus and visibility changes.
var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Integrations</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #282a36; }
table { border-collapse: collapse; }
td, th { padding: .4rem 1rem; text-align: left; border-bottom: 1px solid #ddd; }
.connected { color: #2e7d32; }
.error { color: #c62828; }
.detecting, .loading { color: #ef6c00; }
</style>
</head>
<body>
<h1>Integrations</h1>
<p>Scope: <code>{{.Scope}}</code></p>
<table>
<tr><th>Service</th><th>Status</th><th></th></tr>
{{range .Rows}}
<tr>
<td>{{.Service}}</td>
<td class="{{.Status}}" id="status-{{.Service}}">{{.Status}}{{if .Pending}} &hellip;{{end}}</td>
<td>
<button data-action="/connect/{{.Service}}/popup">Connect</button>
<button data-action="/status/{{.Service}}/connected">Mark connected</button>
</td>
</tr>
{{end}}
</table>
<p><button data-action="/reset">Reset all</button></p>
<script>
document.querySelectorAll("button[data-action]").forEach(function (b) {
  b.addEventListener("click", function () {
    fetch(b.dataset.action, { method: "POST" });
  });
});
var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = function (ev) {
  var frame = JSON.parse(ev.data);
  var services = frame.status.services;
  Object.keys(services).forEach(function (svc) {
    var cell = document.getElementById("status-" + svc);
    if (!cell) { return; }
    cell.textContent = services[svc] + (frame.status.pending.indexOf(svc) >= 0 ? " …" : "");
    cell.className = services[svc];
  });
};
</script>
</body>
</html>
`))
