package bridge

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/djbridge/internal/logging"
)

// bannerDelay lets the host print its own startup lines first.
const bannerDelay = 100 * time.Millisecond

// BackendName labels the backend in the banner.
const BackendName = "django"

var upper = cases.Upper(language.Und)

// Banner formats the startup line naming the backend and bridge versions.
func Banner(backendVersion, bridgeVersion, devURL string, f *logging.LogFormatter) string {
	if f == nil {
		f = &logging.LogFormatter{}
	}
	return fmt.Sprintf("  %s %s  %s %s  %s %s\n",
		f.Green(f.Bold(upper.String(BackendName))), orUnknown(backendVersion),
		f.Dim("djbridge"), orUnknown(bridgeVersion),
		f.Dim("assets"), f.Bold(devURL))
}

// colorsEnabled follows the NO_COLOR convention.
func colorsEnabled() bool {
	return os.Getenv("NO_COLOR") == ""
}

func printBanner(w io.Writer, line string) {
	if w == nil {
		return
	}
	_, _ = io.WriteString(w, line)
}
