package loader

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eugenenazirov/rcloadenv/internal/envmap"
	"github.com/eugenenazirov/rcloadenv/internal/errs"
	"github.com/eugenenazirov/rcloadenv/internal/runtimeconfig"
	"github.com/eugenenazirov/rcloadenv/internal/transform"
)

// Fetcher retrieves the complete variable set of a config.
type Fetcher interface {
	ListVariables(ctx context.Context, project, config string) ([]transform.RawVariable, error)
}

// Options are fixed for the lifetime of a Loader.
type Options struct {
	ConfigName string
	Project    string
	Filter     envmap.FilterSpec
	Override   bool
	KeyStyle   transform.KeyStyle
	// LegacyAliasKeys additionally writes each variable under its untransformed
	// leaf name. Off by default since aliases may collide with unrelated keys.
	LegacyAliasKeys bool
	Debug           bool
}

// Loader loads the variables of one config into environments. The variable
// set is fetched at most once per Loader.
type Loader struct {
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger

	mu     sync.Mutex
	raw    []transform.RawVariable
	loaded bool
}

// New constructs a Loader. Trace output goes to logger when opts.Debug is set.
func New(fetcher Fetcher, opts Options, logger *zap.Logger) *Loader {
	if logger == nil || !opts.Debug {
		logger = zap.NewNop()
	}
	if opts.KeyStyle == "" {
		opts.KeyStyle = transform.StyleDash
	}
	opts.ConfigName = strings.TrimSpace(opts.ConfigName)
	opts.Project = strings.TrimSpace(opts.Project)
	return &Loader{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}

// ConfigName returns the Runtime Configurator config name.
func (l *Loader) ConfigName() string { return l.opts.ConfigName }

// Project returns the cloud project.
func (l *Loader) Project() string { return l.opts.Project }

// RawVariables returns the variables of the config in fetch order. The first
// successful call fetches them; later calls return the cached set. A failed
// fetch is not cached.
func (l *Loader) RawVariables(ctx context.Context) ([]transform.RawVariable, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.raw, nil
	}
	if l.opts.Project == "" {
		return nil, fmt.Errorf("%w: project name must be provided", errs.ErrUsage)
	}
	if l.opts.ConfigName == "" {
		return nil, fmt.Errorf("%w: config name must be provided", errs.ErrUsage)
	}

	l.logger.Debug("loading config",
		zap.String("config", l.opts.ConfigName),
		zap.String("project", l.opts.Project),
	)
	raw, err := l.fetcher.ListVariables(ctx, l.opts.Project, l.opts.ConfigName)
	if err != nil {
		return nil, fmt.Errorf("could not fetch config %s: %w", l.opts.ConfigName, err)
	}
	l.raw = raw
	l.loaded = true
	return l.raw, nil
}

// ModifyEnv merges the config's variables into env in place and returns it.
// Writes are staged and applied to env only after every variable has been
// filtered and transformed; a failed write reverts the ones before it.
func (l *Loader) ModifyEnv(ctx context.Context, env envmap.Environment) (envmap.Environment, error) {
	raw, err := l.RawVariables(ctx)
	if err != nil {
		return nil, err
	}

	stage := envmap.NewOverlay(env)

	parent := runtimeconfig.ParentPath(l.opts.Project, l.opts.ConfigName)
	for _, v := range raw {
		name := transform.RelativeName(v.Name, parent)
		if !l.opts.Filter.Allows(name) {
			l.logger.Debug("skipping config variable", zap.String("variable", name))
			continue
		}
		l.logger.Debug("found config variable", zap.String("variable", name))

		canonical, ok := transform.Transform(v, l.opts.KeyStyle)
		if !ok {
			l.logger.Debug("skipping config variable without usable key", zap.String("variable", name))
			continue
		}
		if err := l.merge(stage, canonical.Key, canonical.Value); err != nil {
			return nil, err
		}

		if l.opts.LegacyAliasKeys {
			if alias := transform.LeafName(v.Name); alias != canonical.Key {
				if err := l.merge(stage, alias, canonical.Value); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stage.Commit(); err != nil {
		return nil, err
	}
	return env, nil
}

// Load merges the config's variables into a new, empty environment.
func (l *Loader) Load(ctx context.Context) (*envmap.MemoryEnvironment, error) {
	env := envmap.NewMemoryEnvironment(nil)
	if _, err := l.ModifyEnv(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

func (l *Loader) merge(env envmap.Environment, key, value string) error {
	outcome, err := envmap.Merge(env, key, value, l.opts.Override)
	if err != nil {
		return fmt.Errorf("set envvar %s: %w", key, err)
	}
	switch outcome {
	case envmap.Added:
		l.logger.Debug("setting envvar", zap.String("key", key))
	case envmap.Overridden:
		l.logger.Debug("overriding envvar", zap.String("key", key))
	default:
		l.logger.Debug("envvar already set", zap.String("key", key))
	}
	return nil
}
