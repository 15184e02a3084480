package devserver

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// clientTag loads the reload client.
const clientTag = `<script type="module" src="` + ClientPath + `"></script>`

// InjectClient inserts the reload client script into an HTML document,
// before </head> when there is one, otherwise before </body>, otherwise at
// the end. Tags that only appear inside scripts, styles or comments are not
// mistaken for the real ones.
func InjectClient(doc string) string {
	if strings.Contains(doc, clientTag) {
		return doc
	}

	headEnd, bodyEnd := -1, -1

	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Head:
				if headEnd < 0 {
					headEnd = offset
				}
			case atom.Body:
				if bodyEnd < 0 {
					bodyEnd = offset
				}
			}
		}
		offset += raw
	}

	at := len(doc)
	switch {
	case headEnd >= 0:
		at = headEnd
	case bodyEnd >= 0:
		at = bodyEnd
	}

	return doc[:at] + clientTag + doc[at:]
}
