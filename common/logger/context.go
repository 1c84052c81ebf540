package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so dispatch and submission code never has to
// repeat the job identifiers on every log statement.
type LogFields struct {
	JobID        *int64  // Queue entry ID
	JobKind      *string // "move", "placeGood", "remove", "add"
	Attempt      *int    // Dispatch attempt, starting at 0
	RobotAddress *string // Robot channel address
	Backend      *string // Queue backend ("file", "redis", "postgres")
	Component    string  // Component name, e.g. "relay.dispatch"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.JobID != nil {
		result.JobID = new.JobID
	}
	if new.JobKind != nil {
		result.JobKind = new.JobKind
	}
	if new.Attempt != nil {
		result.Attempt = new.Attempt
	}
	if new.RobotAddress != nil {
		result.RobotAddress = new.RobotAddress
	}
	if new.Backend != nil {
		result.Backend = new.Backend
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{JobID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Used for solver stderr and robot payloads.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
