package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
)

// logger is satisfied by *slog.Logger.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// gooseLogger routes goose output through the application logger.
type gooseLogger struct {
	log logger
}

var _ goose.Logger = (*gooseLogger)(nil)

func (a *gooseLogger) Fatalf(format string, v ...any) {
	a.log.ErrorContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a *gooseLogger) Printf(format string, v ...any) {
	a.log.InfoContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}
