package types

// RunMode is the deployment mode of the service
type RunMode string

const (
	ModeLocal       RunMode = "local"
	ModeDevelopment RunMode = "development"
	ModeProduction  RunMode = "production"
)

// LogLevel is the configured logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) String() string {
	return string(l)
}
