package cli

import (
	"errors"

	"github.com/tkingovr/procfilter/internal/config"
	"github.com/tkingovr/procfilter/internal/filter"
)

// Process exit statuses. Dropped matches the default drop code filters use,
// so procfilter can itself be chained as a filter.
const (
	ExitDelivered = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitDropped   = 99
)

// errDropped is returned by run when the chain dropped the message.
var errDropped = errors.New("message dropped")

// ExitCode maps the result of Execute to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitDelivered
	}
	if errors.Is(err, errDropped) {
		return ExitDropped
	}

	var cfgErr *filter.ConfigurationError
	var privErr *filter.PrivilegeError
	if errors.As(err, &cfgErr) || errors.As(err, &privErr) || errors.Is(err, config.ErrInvalid) {
		return ExitConfig
	}
	return ExitFailure
}
