package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/conneroisu/djbridge/internal/config"
	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
)

// Exit codes returned by Execute.
const (
	exitOK = 0
	// exitFailure covers usage errors and failures while serving.
	exitFailure = 1
	// exitSetup means the bridge could not be configured: the backend
	// command failed or the configuration is invalid.
	exitSetup = 2
)

const backendHint = "hint: the backend command must print the Django settings as a JSON object (see --backend-command)"

// handleError reports err on w and maps it to an exit code.
func handleError(ctx context.Context, w io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.LevelWarn,
		Format:    config.DefaultLogFormat,
		Output:    w,
		Component: "djbridge",
	})
	errors.NewErrorHandler(logger).Handle(ctx, err)

	if errors.IsBackendError(err) {
		fmt.Fprintln(w, backendHint)
	}
	if errors.IsSetupFatal(err) {
		return exitSetup
	}
	return exitFailure
}
