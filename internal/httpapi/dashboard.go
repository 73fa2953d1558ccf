package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>DocSync Status</title>
  <style>
    :root {
      --ink: #16212d;
      --paper: #f5f7fa;
      --card: #ffffff;
      --line: #d3dbe4;
      --accent: #2563a8;
      --muted: #66727f;
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Segoe UI", "Helvetica Neue", sans-serif;
      color: var(--ink);
      background: var(--paper);
      min-height: 100vh;
      padding: 24px;
    }

    .shell { max-width: 960px; margin: 0 auto; display: grid; gap: 14px; }

    .bar, .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 10px;
      padding: 16px;
    }

    h1 { margin: 0; font-size: 1.4rem; }
    .sub { margin-top: 6px; color: var(--muted); font-size: 0.9rem; }

    .controls { display: flex; gap: 10px; margin-top: 12px; }
    .controls input {
      flex: 1;
      border-radius: 8px;
      border: 1px solid var(--line);
      padding: 9px 11px;
      font-size: 0.92rem;
    }

    button {
      border: 0;
      border-radius: 8px;
      padding: 9px 14px;
      font-family: inherit;
      font-weight: 600;
      cursor: pointer;
      background: var(--accent);
      color: #ffffff;
    }

    table { width: 100%; border-collapse: collapse; font-size: 0.92rem; }
    th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid var(--line); }
    th { color: var(--muted); font-weight: 600; }
    .error { color: #b23b31; margin-top: 10px; font-size: 0.9rem; }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>DocSync</h1>
      <div class="sub">Sections persisted by this server and their realtime subscribers.</div>
      <div class="controls">
        <input id="token" type="password" placeholder="Bearer token (status:read)" />
        <button id="refresh">Refresh</button>
      </div>
      <div id="error" class="error"></div>
    </div>
    <div class="card">
      <table>
        <thead>
          <tr><th>Section</th><th>Revision</th><th>Updated</th><th>Subscribers</th></tr>
        </thead>
        <tbody id="rows">
          <tr><td colspan="4">No data loaded.</td></tr>
        </tbody>
      </table>
    </div>
  </div>
  <script>
    const rows = document.getElementById("rows");
    const errBox = document.getElementById("error");

    async function refresh() {
      errBox.textContent = "";
      const token = document.getElementById("token").value.trim();
      try {
        const resp = await fetch("/v1/sync/status", {
          headers: {
            "Authorization": "Bearer " + token,
            "X-Correlation-Id": "dash_" + Math.random().toString(36).slice(2)
          }
        });
        const body = await resp.json();
        if (!resp.ok) {
          throw new Error(body.message || ("request failed: " + resp.status));
        }
        if (!body.sections.length) {
          rows.innerHTML = "<tr><td colspan=4>No sections persisted yet.</td></tr>";
          return;
        }
        rows.innerHTML = body.sections.map(section =>
          "<tr><td>" + section.sectionId + "</td><td>" + section.revision +
          "</td><td>" + section.updatedAt + "</td><td>" + section.subscribers + "</td></tr>"
        ).join("");
      } catch (err) {
        errBox.textContent = String(err.message || err);
      }
    }

    document.getElementById("refresh").addEventListener("click", refresh);
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, dashboardHTML)
}
