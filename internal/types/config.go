package types

// RunMode is the deployment mode of the process
type RunMode string

// LogLevel is the logging verbosity
type LogLevel string

const (
	ModeLocal RunMode = "local"
	ModeProd  RunMode = "prod"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)
