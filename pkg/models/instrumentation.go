package models

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/teslashibe/go-moodcam/pkg/models"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)
