package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/conneroisu/djbridge/internal/plugins"
)

// IndexPath is answered with the informational page. The dev server only
// serves assets; pages come from the backend.
const IndexPath = "/index.html"

// InfoPageData is shown on the informational page.
type InfoPageData struct {
	BackendVersion string
	BridgeVersion  string
	DevURL         string
}

// InfoPage renders a short page explaining that the dev server is not the
// site and pointing at the backend instead.
func InfoPage(data InfoPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>djbridge dev server</title>
<style>body{font-family:system-ui,sans-serif;max-width:40rem;margin:4rem auto;line-height:1.5;color:#222}code{background:#f3f3f3;padding:0 .25rem}</style>
</head>
<body>
<h1>This is the asset dev server</h1>
<p>It serves scripts and styles to your Django pages. Open the Django development server instead, usually <code>python manage.py runserver</code>.</p>
<ul>
<li>Django: <code>%s</code></li>
<li>djbridge: <code>%s</code></li>
<li>Dev server: <code>%s</code></li>
</ul>
</body>
</html>
`,
			templ.EscapeString(orUnknown(data.BackendVersion)),
			templ.EscapeString(orUnknown(data.BridgeVersion)),
			templ.EscapeString(orUnknown(data.DevURL)))
		return err
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// InfoPageMiddleware answers IndexPath with the page from data and a 404
// status. Every other request passes through.
func InfoPageMiddleware(data func() InfoPageData) plugins.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != IndexPath {
				next.ServeHTTP(w, r)
				return
			}
			templ.Handler(InfoPage(data()), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
		})
	}
}
