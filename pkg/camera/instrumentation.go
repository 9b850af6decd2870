package camera

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/teslashibe/go-moodcam/pkg/camera"

var tracer = otel.Tracer(scopeName)
