package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/eugenenazirov/rcloadenv/internal/config"
	"github.com/eugenenazirov/rcloadenv/internal/credentials"
	"github.com/eugenenazirov/rcloadenv/internal/envmap"
	"github.com/eugenenazirov/rcloadenv/internal/errs"
	"github.com/eugenenazirov/rcloadenv/internal/loader"
	"github.com/eugenenazirov/rcloadenv/internal/runtimeconfig"
	"github.com/eugenenazirov/rcloadenv/internal/transform"
)

// Version is reported in --version output and outgoing request headers.
var Version = "0.3.0"

type execFunc func(argv0 string, argv []string, envv []string) error

// App encapsulates the dependencies needed to load a config and launch a command.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	resolver   *credentials.Resolver
	httpClient *http.Client
	requestID  string

	environ  func() []string
	lookPath func(string) (string, error)
	exec     execFunc
}

// Option configures an App.
type Option func(*App)

// WithHTTPClient supplies a pre-authorized HTTP client, bypassing credential discovery.
func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

// WithResolver overrides the credential and project resolver.
func WithResolver(resolver *credentials.Resolver) Option {
	return func(a *App) {
		a.resolver = resolver
	}
}

// WithEnviron overrides the source of the inherited environment.
func WithEnviron(environ func() []string) Option {
	return func(a *App) {
		a.environ = environ
	}
}

// WithExec overrides how the child command replaces the current process.
func WithExec(lookPath func(string) (string, error), execve func(argv0 string, argv []string, envv []string) error) Option {
	return func(a *App) {
		a.lookPath = lookPath
		a.exec = execve
	}
}

// New initializes the application from the provided configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:       cfg,
		logger:    logger,
		requestID: uuid.NewString(),
		environ:   os.Environ,
		lookPath:  exec.LookPath,
		exec:      syscall.Exec,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.resolver == nil {
		a.resolver = credentials.NewResolver([]string{runtimeconfig.Scope},
			credentials.WithLogger(logger.Named("credentials")),
		)
	}
	return a
}

// NewLoader resolves the project and credentials and returns a Loader for configName.
func (a *App) NewLoader(ctx context.Context, configName string) (*loader.Loader, error) {
	configName = strings.TrimSpace(configName)
	if configName == "" {
		return nil, fmt.Errorf("%w: you must provide a config name", errs.ErrUsage)
	}

	project, err := a.resolver.Project(ctx, a.cfg.Project)
	if err != nil {
		return nil, err
	}

	httpClient := a.httpClient
	if httpClient == nil {
		creds, err := a.resolver.Credentials(ctx)
		if err != nil {
			return nil, err
		}
		httpClient = NewHTTPClient(a.cfg, creds.TokenSource, a.requestID, a.logger)
	}

	client := runtimeconfig.NewClient(httpClient,
		runtimeconfig.WithEndpoint(a.cfg.Endpoint),
		runtimeconfig.WithLogger(a.logger.Named("runtimeconfig")),
	)

	keyStyle := a.cfg.KeyStyle
	if keyStyle == "" {
		keyStyle = transform.StyleDash
	}
	return loader.New(client, loader.Options{
		ConfigName:      configName,
		Project:         project,
		Filter:          envmap.NewFilterSpec(a.cfg.Exclude, a.cfg.Include),
		Override:        a.cfg.Override,
		KeyStyle:        keyStyle,
		LegacyAliasKeys: a.cfg.LegacyAliasKeys,
		Debug:           a.cfg.Debug,
	}, a.logger.With(zap.String("request_id", a.requestID))), nil
}

// NewHTTPClient creates an authorized HTTP client with retries and pacing from
// the provided configuration.
func NewHTTPClient(cfg config.Config, source oauth2.TokenSource, requestID string, logger *zap.Logger) *http.Client {
	transport := runtimeconfig.NewTransport(http.DefaultTransport, runtimeconfig.TransportConfig{
		Retries:           cfg.Retries,
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
		UserAgent:         "rcloadenv-go/" + Version,
		RequestID:         requestID,
	}, logger)

	if source != nil {
		transport = &oauth2.Transport{Source: source, Base: transport}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// BuildEnvironment returns the environment for the child command: the inherited
// environment, seeded with the env file entries that are not already set, then
// merged with the variables of configName.
func (a *App) BuildEnvironment(ctx context.Context, configName string) (*envmap.MemoryEnvironment, error) {
	env := envmap.FromEnviron(a.environ())
	if err := a.seedEnvFile(env); err != nil {
		return nil, err
	}

	l, err := a.NewLoader(ctx, configName)
	if err != nil {
		return nil, err
	}
	if _, err := l.ModifyEnv(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

// Run loads configName into the environment and replaces the current process
// with command. On success it does not return.
func (a *App) Run(ctx context.Context, configName string, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("%w: you must provide a command delimited by `--`", errs.ErrUsage)
	}

	env, err := a.BuildEnvironment(ctx, configName)
	if err != nil {
		return err
	}

	binary, err := a.lookPath(command[0])
	if err != nil {
		return fmt.Errorf("failed to find command %s: %w", command[0], err)
	}
	a.logger.Debug("executing command", zap.String("binary", binary), zap.Strings("args", command[1:]))
	if err := a.exec(binary, command, env.Environ()); err != nil {
		return fmt.Errorf("failed to run %s: %w", binary, err)
	}
	return nil
}

func (a *App) seedEnvFile(env envmap.Environment) error {
	if a.cfg.EnvFile == "" {
		return nil
	}
	vars, err := godotenv.Read(a.cfg.EnvFile)
	if err != nil {
		return fmt.Errorf("%w: read env file: %w", errs.ErrUsage, err)
	}
	for k, v := range vars {
		outcome, err := envmap.Merge(env, k, v, false)
		if err != nil {
			return err
		}
		a.logger.Debug("env file entry", zap.String("key", k), zap.Stringer("outcome", outcome))
	}
	return nil
}
