package filter

import (
	"fmt"
	"log/slog"

	"github.com/tkingovr/procfilter/internal/runner"
)

// Deps holds what filters are built with.
type Deps struct {
	Runner *runner.Runner
	Logger *slog.Logger
}

// New builds the filter variant selected by cfg.Type.
func New(cfg Config, deps Deps) (Filter, error) {
	r := deps.Runner
	if r == nil {
		r = runner.NewRunner(deps.Logger, nil)
	}

	switch cfg.Type {
	case TypeExternal:
		return NewExternal(cfg, r)
	case TypeClassifier:
		return NewClassifier(cfg, r)
	case TypeTMDA:
		return NewTMDA(cfg, r)
	case "":
		return nil, configErr(cfg.Name, "missing filter type")
	default:
		return nil, configErr(cfg.Name, "unknown filter type %q", cfg.Type)
	}
}

// BuildChain constructs a chain from the configured filters in order.
// Filter names must be unique.
func BuildChain(cfgs []Config, deps Deps, recorders ...Recorder) (*Chain, error) {
	chain := NewChain(deps.Logger)
	seen := make(map[string]bool, len(cfgs))
	for i, cfg := range cfgs {
		f, err := New(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i+1, err)
		}
		if seen[f.Name()] {
			return nil, fmt.Errorf("filter %d: %w", i+1, configErr(f.Name(), "duplicate filter name"))
		}
		seen[f.Name()] = true
		chain.AddFilter(f)
	}
	for _, r := range recorders {
		chain.AddRecorder(r)
	}
	return chain, nil
}
