package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/rcloadenv/internal/application"
	"github.com/eugenenazirov/rcloadenv/internal/config"
	"github.com/eugenenazirov/rcloadenv/internal/errs"
	"github.com/eugenenazirov/rcloadenv/internal/logging"
)

var signalNotifyContext = signal.NotifyContext

// invocation is the parsed command line.
type invocation struct {
	configName string
	command    []string
	overrides  *config.CLIOverrides
}

type cli struct {
	app *kingpin.Application

	configFile     *string
	project        *string
	except         *[]string
	only           *[]string
	override       *bool
	overrideSet    bool
	debug          *bool
	debugSet       bool
	legacyAlias    *bool
	legacyAliasSet bool
	keyStyle       *string
	envFile        *string
	logFormat      *string
	endpoint       *string
	timeout        *time.Duration
	retries        *int
	projectID      *string
	configName     *string
}

func newCLI() *cli {
	app := kingpin.New("rcloadenv", "Loads Runtime Configurator variables into the environment and executes a command.")
	app.UsageWriter(os.Stderr)
	app.Version(application.Version)
	app.HelpFlag.Short('?')

	c := &cli{app: app}
	c.project = app.Flag("project", "Project to read runtime config from").Short('p').PlaceHolder("NAME").String()
	c.projectID = app.Flag("projectId", "Alias of --project").Hidden().String()
	c.except = app.Flag("except", "Runtime-config variables to exclude, comma delimited").Short('E').PlaceHolder("KEY1,KEY2").Strings()
	c.only = app.Flag("only", "Runtime-config variables to include, comma delimited").Short('O').PlaceHolder("KEY1,KEY2").Strings()
	c.override = app.Flag("override", "Cause config to override existing environment variables").Short('o').IsSetByUser(&c.overrideSet).Bool()
	c.debug = app.Flag("debug", "Enable debug output").Short('d').IsSetByUser(&c.debugSet).Bool()
	c.legacyAlias = app.Flag("legacy-alias-keys", "Also set each variable under its untransformed name").IsSetByUser(&c.legacyAliasSet).Bool()
	c.keyStyle = app.Flag("key-style", "Key normalization: dash or snake").PlaceHolder("dash").String()
	c.configFile = app.Flag("config", "Path to YAML configuration file").String()
	c.envFile = app.Flag("env-file", "Dotenv file whose entries are set before the config is merged").String()
	c.logFormat = app.Flag("log-format", "Diagnostics format: auto, json or console").String()
	c.endpoint = app.Flag("endpoint", "Runtime Configurator API root").String()
	c.timeout = app.Flag("timeout", "Timeout of each page request").Duration()
	c.retries = app.Flag("retries", "Retries per page request (set 0 to disable)").Default("-1").Int()
	c.configName = app.Arg("config-name", "Name of the runtime config resource").Required().String()
	return c
}

// parse splits args at the first "--" and parses the part before it.
func (c *cli) parse(args []string) (invocation, error) {
	sep := slices.Index(args, "--")
	if sep < 0 {
		if _, err := c.app.Parse(args); err != nil {
			return invocation{}, err
		}
		return invocation{}, fmt.Errorf("%w: you must provide a command delimited by `--`", errs.ErrUsage)
	}

	if _, err := c.app.Parse(args[:sep]); err != nil {
		return invocation{}, err
	}
	command := args[sep+1:]
	if len(command) == 0 {
		return invocation{}, fmt.Errorf("%w: you must provide a command delimited by `--`", errs.ErrUsage)
	}

	project := c.project
	if *project == "" {
		project = c.projectID
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *c.configFile,
		Project:    project,
		Exclude:    *c.except,
		Include:    *c.only,
		KeyStyle:   c.keyStyle,
		EnvFile:    c.envFile,
		LogFormat:  c.logFormat,
		Endpoint:   c.endpoint,
		Timeout:    c.timeout,
	}
	if c.overrideSet {
		overrides.Override = c.override
	}
	if c.debugSet {
		overrides.Debug = c.debug
	}
	if c.legacyAliasSet {
		overrides.LegacyAliasKeys = c.legacyAlias
	}
	if *c.retries >= 0 {
		overrides.Retries = c.retries
	}

	return invocation{
		configName: *c.configName,
		command:    command,
		overrides:  overrides,
	}, nil
}

func main() {
	c := newCLI()

	inv, err := c.parse(os.Args[1:])
	if err != nil {
		c.app.FatalUsage("%s", usageMessage(err))
	}

	cfg, err := config.Load(inv.overrides)
	if err != nil {
		c.app.FatalUsage("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	if err != nil {
		c.app.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := application.New(cfg, logger)
	err = app.Run(ctx, inv.configName, inv.command)
	stop()
	if err == nil {
		return
	}

	logger.Debug("load failed", zap.Error(err))
	_ = logger.Sync()
	if errors.Is(err, errs.ErrUsage) {
		c.app.FatalUsage("%s", usageMessage(err))
	}
	c.app.Fatalf("%v", err)
}

// usageMessage strips the error class prefix from usage errors.
func usageMessage(err error) string {
	return strings.TrimPrefix(err.Error(), errs.ErrUsage.Error()+": ")
}
