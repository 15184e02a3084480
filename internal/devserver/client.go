package devserver

import (
	"net/http"
)

// Built-in routes. The prefix keeps them clear of project files.
const (
	RoutePrefix = "/@djbridge/"
	WSPath      = RoutePrefix + "ws"
	ClientPath  = RoutePrefix + "client.js"
	HealthPath  = RoutePrefix + "health"
)

// ClientScript is the browser side of the live-update channel. It connects
// back to the server that served it, so it works from pages rendered by the
// backend on another origin, and reloads on full-reload payloads. After a
// lost connection it reconnects with backoff and reloads once the server is
// back.
const ClientScript = `// djbridge reload client
const wsURL = new URL("` + WSPath + `", import.meta.url);
wsURL.protocol = wsURL.protocol === "https:" ? "wss:" : "ws:";

let delay = 500;
const maxDelay = 10000;
let lost = false;

function matches(path) {
  return !path || path === "*" || location.pathname === path;
}

function connect() {
  const ws = new WebSocket(wsURL);

  ws.addEventListener("open", () => {
    delay = 500;
    if (lost) {
      location.reload();
    }
    console.debug("[djbridge] connected");
  });

  ws.addEventListener("message", (event) => {
    let msg;
    try {
      msg = JSON.parse(event.data);
    } catch {
      return;
    }
    if (msg.type === "full-reload" && matches(msg.path)) {
      console.debug("[djbridge] full reload");
      location.reload();
    }
  });

  ws.addEventListener("close", () => {
    lost = true;
    setTimeout(() => {
      delay = Math.min(delay * 2, maxDelay);
      connect();
    }, delay);
  });
}

connect();
`

func serveClientScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(ClientScript))
}
