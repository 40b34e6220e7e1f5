package filter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tkingovr/procfilter/internal/policy"
	"github.com/tkingovr/procfilter/internal/runner"
)

// Type selects the filter variant.
type Type string

const (
	TypeExternal   Type = "external"
	TypeClassifier Type = "classifier"
	TypeTMDA       Type = "tmda"
)

// DefaultTMDAPath is where tmda-filter is looked for when no path is given.
const DefaultTMDAPath = "/usr/local/bin/tmda-filter"

// DefaultConfBreak separates the recipient local part from its extension.
const DefaultConfBreak = "-"

// Config is the user-facing configuration of one filter, as read from YAML.
// Unset exit code lists take their defaults; an explicitly empty keep list
// is an error.
type Config struct {
	Name                  string   `yaml:"name" json:"name"`
	Type                  Type     `yaml:"type" json:"type"`
	Path                  string   `yaml:"path" json:"path"`
	Arguments             []string `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Unixfrom              bool     `yaml:"unixfrom,omitempty" json:"unixfrom,omitempty"`
	ExitcodesKeep         []int    `yaml:"exitcodes_keep,omitempty" json:"exitcodes_keep,omitempty"`
	ExitcodesDrop         []int    `yaml:"exitcodes_drop,omitempty" json:"exitcodes_drop,omitempty"`
	User                  string   `yaml:"user,omitempty" json:"user,omitempty"`
	Group                 string   `yaml:"group,omitempty" json:"group,omitempty"`
	AllowRootCommands     bool     `yaml:"allow_root_commands,omitempty" json:"allow_root_commands,omitempty"`
	IgnoreHeaderShrinkage bool     `yaml:"ignore_header_shrinkage,omitempty" json:"ignore_header_shrinkage,omitempty"`
	IgnoreStderr          bool     `yaml:"ignore_stderr,omitempty" json:"ignore_stderr,omitempty"`
	ConfBreak             *string  `yaml:"conf_break,omitempty" json:"conf_break,omitempty"`
	OutcomePolicy         string   `yaml:"outcome_policy,omitempty" json:"outcome_policy,omitempty"`
}

// Options is the validated form of a Config. It is not modified after
// construction and is safe to share between sequential calls.
type Options struct {
	Name                  string
	Type                  Type
	Path                  string
	Command               string
	Arguments             []string
	Unixfrom              bool
	User                  string
	Group                 string
	AllowRootCommands     bool
	IgnoreHeaderShrinkage bool
	IgnoreStderr          bool
	ConfBreak             string
	ExitCodes             *policy.ExitCodeSets
	OutcomePolicy         string

	// Engine classifies exit codes; it is ExitCodes unless an outcome
	// policy is configured.
	Engine policy.Engine
}

// confString renders the configuration the way showconf prints it.
func (o *Options) confString() string {
	parts := []string{"path=" + o.Path}
	if o.Type != TypeTMDA {
		parts = append(parts,
			fmt.Sprintf("arguments=%q", o.Arguments),
			fmt.Sprintf("unixfrom=%t", o.Unixfrom),
		)
	}
	parts = append(parts,
		fmt.Sprintf("exitcodes_keep=%v", o.ExitCodes.Keep()),
		fmt.Sprintf("exitcodes_drop=%v", o.ExitCodes.Drop()),
	)
	if o.User != "" {
		parts = append(parts, "user="+o.User)
	}
	if o.Group != "" {
		parts = append(parts, "group="+o.Group)
	}
	parts = append(parts,
		fmt.Sprintf("allow_root_commands=%t", o.AllowRootCommands),
		fmt.Sprintf("ignore_stderr=%t", o.IgnoreStderr),
	)
	if o.Type == TypeTMDA {
		parts = append(parts, fmt.Sprintf("conf_break=%q", o.ConfBreak))
	} else {
		parts = append(parts, fmt.Sprintf("ignore_header_shrinkage=%t", o.IgnoreHeaderShrinkage))
	}
	if o.OutcomePolicy != "" {
		parts = append(parts, "outcome_policy="+o.OutcomePolicy)
	}
	return strings.Join(parts, ", ")
}

func newOptions(cfg Config, typ Type) (*Options, error) {
	name := cfg.Name
	path := cfg.Path
	if path == "" && typ == TypeTMDA {
		path = DefaultTMDAPath
	}
	if name == "" && path != "" {
		name = filepath.Base(path)
	}
	if path == "" {
		return nil, configErr(name, "missing required configuration parameter path")
	}
	path = runner.ExpandHome(path)

	if err := unix.Access(path, unix.X_OK); err != nil {
		return nil, configErr(name, "%s not executable: %w", path, err)
	}

	opts := &Options{
		Name:                  name,
		Type:                  typ,
		Path:                  path,
		Command:               filepath.Base(path),
		User:                  cfg.User,
		Group:                 cfg.Group,
		AllowRootCommands:     cfg.AllowRootCommands,
		IgnoreStderr:          cfg.IgnoreStderr,
		IgnoreHeaderShrinkage: cfg.IgnoreHeaderShrinkage,
	}

	var err error
	if typ == TypeTMDA {
		err = opts.setTMDA(cfg)
	} else {
		err = opts.setExternal(cfg)
	}
	if err != nil {
		return nil, err
	}

	opts.Engine = opts.ExitCodes
	if opts.OutcomePolicy != "" {
		engine, err := policy.NewOPAEngine(opts.OutcomePolicy, opts.ExitCodes)
		if err != nil {
			return nil, &ConfigurationError{Filter: name, Err: err}
		}
		opts.Engine = engine
	}
	return opts, nil
}

func (o *Options) setExternal(cfg Config) error {
	if cfg.ConfBreak != nil {
		return configErr(o.Name, "conf_break is only valid for %s filters", TypeTMDA)
	}

	keep, drop := cfg.ExitcodesKeep, cfg.ExitcodesDrop
	if keep == nil {
		keep = policy.DefaultKeep
	}
	if drop == nil {
		drop = policy.DefaultDrop
	}
	sets, err := policy.NewExitCodeSets(keep, drop)
	if err != nil {
		return &ConfigurationError{Filter: o.Name, Err: err}
	}

	o.ExitCodes = sets
	o.Arguments = append([]string(nil), cfg.Arguments...)
	o.Unixfrom = cfg.Unixfrom
	if cfg.OutcomePolicy != "" {
		o.OutcomePolicy = runner.ExpandHome(cfg.OutcomePolicy)
	}
	return nil
}

func (o *Options) setTMDA(cfg Config) error {
	var invalid []string
	if cfg.Arguments != nil {
		invalid = append(invalid, "arguments")
	}
	if cfg.Unixfrom {
		invalid = append(invalid, "unixfrom")
	}
	if cfg.ExitcodesKeep != nil || cfg.ExitcodesDrop != nil {
		invalid = append(invalid, "exitcodes_keep/exitcodes_drop")
	}
	if cfg.IgnoreHeaderShrinkage {
		invalid = append(invalid, "ignore_header_shrinkage")
	}
	if cfg.OutcomePolicy != "" {
		invalid = append(invalid, "outcome_policy")
	}
	if len(invalid) > 0 {
		return configErr(o.Name, "%s not valid for %s filters", strings.Join(invalid, ", "), TypeTMDA)
	}

	o.ConfBreak = DefaultConfBreak
	if cfg.ConfBreak != nil {
		if *cfg.ConfBreak == "" {
			return &ConfigurationError{Filter: o.Name, Err: errors.New("conf_break must not be empty")}
		}
		o.ConfBreak = *cfg.ConfBreak
	}
	o.ExitCodes = tmdaExitCodes
	return nil
}

var tmdaExitCodes = policy.MustExitCodeSets([]int{0}, []int{99})
