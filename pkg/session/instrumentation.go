package session

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/teslashibe/go-moodcam/pkg/session"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)
