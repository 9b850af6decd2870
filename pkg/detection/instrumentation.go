package detection

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/teslashibe/go-moodcam/pkg/detection"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)
