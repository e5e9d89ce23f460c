package server

// RuntimeOption configures a Runtime
type RuntimeOption func(*Runtime)

// WithServiceVersion sets the version reported to telemetry
func WithServiceVersion(version string) RuntimeOption {
	return func(r *Runtime) {
		r.version = version
	}
}

// WithoutTelemetry skips OpenTelemetry provider setup
func WithoutTelemetry() RuntimeOption {
	return func(r *Runtime) {
		r.telemetry = false
	}
}
