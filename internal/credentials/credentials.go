package credentials

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"github.com/eugenenazirov/rcloadenv/internal/errs"
)

const defaultCommandTimeout = 10 * time.Second

var (
	keyfilePathEnvVars = []string{"GOOGLE_CLOUD_KEYFILE", "GCLOUD_KEYFILE"}
	keyfileJSONEnvVars = []string{"GOOGLE_CLOUD_KEYFILE_JSON", "GCLOUD_KEYFILE_JSON"}
	projectEnvVars     = []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"}
)

// MetadataClient exposes the parts of the GCE metadata server used for project detection.
type MetadataClient interface {
	OnGCE() bool
	ProjectID(ctx context.Context) (string, error)
}

// CommandRunner runs an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

type credentialsFinder func(ctx context.Context, scopes ...string) (*google.Credentials, error)

// Resolver determines the credentials and target project of a load.
type Resolver struct {
	scopes         []string
	getenv         func(string) string
	readFile       func(string) ([]byte, error)
	metadata       MetadataClient
	run            CommandRunner
	find           credentialsFinder
	commandTimeout time.Duration
	logger         *zap.Logger

	once  sync.Once
	creds *google.Credentials
	err   error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGetenv overrides the environment lookup, primarily for tests.
func WithGetenv(getenv func(string) string) Option {
	return func(r *Resolver) {
		r.getenv = getenv
	}
}

// WithMetadata overrides the metadata server client.
func WithMetadata(client MetadataClient) Option {
	return func(r *Resolver) {
		r.metadata = client
	}
}

// WithCommandRunner overrides how the gcloud fallback is executed.
func WithCommandRunner(run CommandRunner) Option {
	return func(r *Resolver) {
		r.run = run
	}
}

// WithCredentialsFinder overrides application default credentials discovery.
func WithCredentialsFinder(find func(ctx context.Context, scopes ...string) (*google.Credentials, error)) Option {
	return func(r *Resolver) {
		r.find = find
	}
}

// WithLogger attaches a logger for resolution debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver constructs a Resolver requesting scopes.
func NewResolver(scopes []string, opts ...Option) *Resolver {
	r := &Resolver{
		scopes:         scopes,
		getenv:         os.Getenv,
		readFile:       os.ReadFile,
		metadata:       gceMetadata{},
		run:            runCommand,
		find:           google.FindDefaultCredentials,
		commandTimeout: defaultCommandTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Credentials returns the credentials used to authorize requests. Key file
// variables take precedence over application default credentials. The result
// is computed once; failures are not retried.
func (r *Resolver) Credentials(ctx context.Context) (*google.Credentials, error) {
	r.once.Do(func() {
		r.creds, r.err = r.loadCredentials(ctx)
	})
	return r.creds, r.err
}

func (r *Resolver) loadCredentials(ctx context.Context) (*google.Credentials, error) {
	for _, name := range keyfileJSONEnvVars {
		if raw := r.getenv(name); raw != "" {
			r.logger.Debug("using credentials from environment", zap.String("variable", name))
			return r.fromJSON(ctx, name, []byte(raw))
		}
	}
	for _, name := range keyfilePathEnvVars {
		if path := r.getenv(name); path != "" {
			data, err := r.readFile(path)
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %w", errs.ErrAuthentication, name, err)
			}
			r.logger.Debug("using credentials from key file", zap.String("path", path))
			return r.fromJSON(ctx, name, data)
		}
	}

	creds, err := r.find(ctx, r.scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: find default credentials: %w", errs.ErrAuthentication, err)
	}
	return creds, nil
}

func (r *Resolver) fromJSON(ctx context.Context, source string, data []byte) (*google.Credentials, error) {
	creds, err := google.CredentialsFromJSON(ctx, data, r.scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", errs.ErrAuthentication, source, err)
	}
	return creds, nil
}

// Project resolves the target project. The first non-empty value wins, in
// order: explicit, GOOGLE_CLOUD_PROJECT, GCLOUD_PROJECT, the credentials'
// project, the GCE metadata server and finally `gcloud config get-value project`.
func (r *Resolver) Project(ctx context.Context, explicit string) (string, error) {
	for _, source := range r.projectSources(explicit) {
		project, err := source.resolve(ctx)
		if err != nil {
			r.logger.Debug("project source failed", zap.String("source", source.name), zap.Error(err))
			continue
		}
		if project = strings.TrimSpace(project); project != "" {
			r.logger.Debug("resolved project", zap.String("source", source.name), zap.String("project", project))
			return project, nil
		}
	}
	return "", fmt.Errorf("%w: could not determine project", errs.ErrUsage)
}

type projectSource struct {
	name    string
	resolve func(ctx context.Context) (string, error)
}

func (r *Resolver) projectSources(explicit string) []projectSource {
	sources := []projectSource{{
		name:    "explicit",
		resolve: func(context.Context) (string, error) { return explicit, nil },
	}}
	for _, name := range projectEnvVars {
		name := name
		sources = append(sources, projectSource{
			name:    name,
			resolve: func(context.Context) (string, error) { return r.getenv(name), nil },
		})
	}
	return append(sources,
		projectSource{name: "credentials", resolve: r.credentialsProject},
		projectSource{name: "metadata", resolve: r.metadataProject},
		projectSource{name: "gcloud", resolve: r.gcloudProject},
	)
}

func (r *Resolver) credentialsProject(ctx context.Context) (string, error) {
	creds, err := r.Credentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.ProjectID, nil
}

func (r *Resolver) metadataProject(ctx context.Context) (string, error) {
	if r.metadata == nil || !r.metadata.OnGCE() {
		return "", nil
	}
	return r.metadata.ProjectID(ctx)
}

func (r *Resolver) gcloudProject(ctx context.Context) (string, error) {
	if r.run == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	out, err := r.run(ctx, "gcloud", "config", "get-value", "project")
	if err != nil {
		return "", err
	}
	project := strings.TrimSpace(string(out))
	if project == "(unset)" {
		return "", nil
	}
	return project, nil
}

type gceMetadata struct{}

func (gceMetadata) OnGCE() bool {
	return metadata.OnGCE()
}

func (gceMetadata) ProjectID(ctx context.Context) (string, error) {
	return metadata.ProjectIDWithContext(ctx)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
