package telemetry

// Config controls OpenTelemetry tracing.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of root spans kept, between 0 and 1.
	SampleRate float64
}

// DefaultConfig returns tracing disabled with collector defaults filled in.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "pagesweep",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
