package publishers

import (
	"context"

	"github.com/samvad-hq/portaldb-go/internal/logger"
)

// Publisher delivers call events to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

func orNop(log logger.Logger) logger.Logger {
	if log == nil {
		return logger.NopLogger{}
	}
	return log
}
