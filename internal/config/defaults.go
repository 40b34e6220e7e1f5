package config

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultPath returns the configuration file used when --config is not given.
func DefaultPath() string {
	return "~/.procfilter/procfilter.yaml"
}
