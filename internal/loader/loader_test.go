package loader

import (
	"context"
	"errors"
	"maps"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/rcloadenv/internal/envmap"
	"github.com/eugenenazirov/rcloadenv/internal/errs"
	"github.com/eugenenazirov/rcloadenv/internal/transform"
)

const (
	testProject = "my-project"
	testConfig  = "my-config"
)

type fakeFetcher struct {
	t     *testing.T
	vars  []transform.RawVariable
	err   error
	calls int
}

func (f *fakeFetcher) ListVariables(_ context.Context, project, config string) ([]transform.RawVariable, error) {
	f.calls++
	if project != testProject || config != testConfig {
		f.t.Errorf("unexpected fetch for %s/%s", project, config)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vars, nil
}

func sampleVariables() []transform.RawVariable {
	return []transform.RawVariable{
		{Name: "var1", Value: []byte("binval")},
		{Name: "var2", Text: "txtval"},
		{Name: "long/path/name", Value: []byte("value3")},
		{Name: "Name-With-Dashes", Value: []byte("value4")},
	}
}

func setupLoader(t *testing.T, opts Options) (*Loader, *fakeFetcher) {
	t.Helper()

	fetcher := &fakeFetcher{t: t, vars: sampleVariables()}
	opts.ConfigName = testConfig
	opts.Project = testProject
	return New(fetcher, opts, zaptest.NewLogger(t)), fetcher
}

func TestModifyEnv(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		initial map[string]string
		want    map[string]string
	}{
		{
			name: "Transforms",
			want: map[string]string{
				"VAR1":             "binval",
				"VAR2":             "txtval",
				"NAME":             "value3",
				"NAME_WITH_DASHES": "value4",
			},
		},
		{
			name: "Exclude",
			opts: Options{Filter: envmap.NewFilterSpec([]string{"var1", "VAR2", "long/path/name"}, nil)},
			want: map[string]string{
				"VAR2":             "txtval",
				"NAME_WITH_DASHES": "value4",
			},
		},
		{
			name: "Include",
			opts: Options{Filter: envmap.NewFilterSpec(nil, []string{"var1", "VAR2", "long/path/name"})},
			want: map[string]string{
				"VAR1": "binval",
				"NAME": "value3",
			},
		},
		{
			name: "IncludeSingle",
			opts: Options{Filter: envmap.NewFilterSpec(nil, []string{"var1"})},
			want: map[string]string{"VAR1": "binval"},
		},
		{
			name:    "NoOverride",
			initial: map[string]string{"VAR1": "original"},
			want: map[string]string{
				"VAR1":             "original",
				"VAR2":             "txtval",
				"NAME":             "value3",
				"NAME_WITH_DASHES": "value4",
			},
		},
		{
			name:    "Override",
			opts:    Options{Override: true},
			initial: map[string]string{"VAR1": "original"},
			want: map[string]string{
				"VAR1":             "binval",
				"VAR2":             "txtval",
				"NAME":             "value3",
				"NAME_WITH_DASHES": "value4",
			},
		},
		{
			name: "LegacyAliasKeys",
			opts: Options{LegacyAliasKeys: true, Filter: envmap.NewFilterSpec(nil, []string{"var1", "Name-With-Dashes"})},
			want: map[string]string{
				"VAR1":             "binval",
				"var1":             "binval",
				"NAME_WITH_DASHES": "value4",
				"Name-With-Dashes": "value4",
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			loader, _ := setupLoader(t, tc.opts)
			env := envmap.NewMemoryEnvironment(tc.initial)

			if _, err := loader.ModifyEnv(context.Background(), env); err != nil {
				t.Fatalf("ModifyEnv returned error: %v", err)
			}
			if got := env.Map(); !maps.Equal(got, tc.want) {
				t.Fatalf("unexpected environment:\n got  %v\n want %v", got, tc.want)
			}
		})
	}
}

func TestFilterMatchesNameRelativeToConfig(t *testing.T) {
	parent := "projects/" + testProject + "/configs/" + testConfig + "/variables/"
	fetcher := &fakeFetcher{t: t, vars: []transform.RawVariable{
		{Name: parent + "var1", Text: "one"},
		{Name: parent + "long/path/name", Text: "three"},
		{Name: parent + "var2", Text: "two"},
	}}
	loader := New(fetcher, Options{
		ConfigName: testConfig,
		Project:    testProject,
		Filter:     envmap.NewFilterSpec([]string{"var1", "long/path/name"}, nil),
	}, zaptest.NewLogger(t))

	env, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if want := map[string]string{"VAR2": "two"}; !maps.Equal(env.Map(), want) {
		t.Fatalf("expected %v, got %v", want, env.Map())
	}
}

func TestRawVariablesCached(t *testing.T) {
	loader, fetcher := setupLoader(t, Options{})

	for i := 0; i < 3; i++ {
		if _, err := loader.Load(context.Background()); err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.calls)
	}
}

func TestFetchFailureLeavesEnvironmentUntouched(t *testing.T) {
	fetcher := &fakeFetcher{t: t, err: errors.Join(errs.ErrTransport, errors.New("boom"))}
	loader := New(fetcher, Options{ConfigName: testConfig, Project: testProject}, zaptest.NewLogger(t))
	env := envmap.NewMemoryEnvironment(map[string]string{"KEEP": "me"})

	if _, err := loader.ModifyEnv(context.Background(), env); !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if want := map[string]string{"KEEP": "me"}; !maps.Equal(env.Map(), want) {
		t.Fatalf("expected environment unchanged, got %v", env.Map())
	}

	// failures are not cached
	fetcher.err = nil
	fetcher.vars = sampleVariables()
	if _, err := loader.ModifyEnv(context.Background(), env); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected two fetch attempts, got %d", fetcher.calls)
	}
}

// failingEnvironment rejects writes to one key.
type failingEnvironment struct {
	*envmap.MemoryEnvironment
	reject string
}

func (e *failingEnvironment) Set(key, value string) error {
	if key == e.reject {
		return errors.New("invalid argument")
	}
	return e.MemoryEnvironment.Set(key, value)
}

func TestModifyEnvWriteFailureLeavesEnvironmentUntouched(t *testing.T) {
	loader, _ := setupLoader(t, Options{Override: true})
	env := &failingEnvironment{
		MemoryEnvironment: envmap.NewMemoryEnvironment(map[string]string{"VAR1": "original"}),
		reject:            "NAME",
	}

	if _, err := loader.ModifyEnv(context.Background(), env); err == nil {
		t.Fatalf("expected write failure")
	}
	if want := map[string]string{"VAR1": "original"}; !maps.Equal(env.Map(), want) {
		t.Fatalf("expected environment unchanged, got %v", env.Map())
	}
}

func TestUsageErrorsBeforeFetch(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "MissingProject", opts: Options{ConfigName: testConfig}},
		{name: "MissingConfig", opts: Options{Project: testProject}},
		{name: "BlankConfig", opts: Options{Project: testProject, ConfigName: "  "}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &fakeFetcher{t: t}
			loader := New(fetcher, tc.opts, zaptest.NewLogger(t))

			if _, err := loader.Load(context.Background()); !errors.Is(err, errs.ErrUsage) {
				t.Fatalf("expected ErrUsage, got %v", err)
			}
			if fetcher.calls != 0 {
				t.Fatalf("expected no fetch, got %d", fetcher.calls)
			}
		})
	}
}

func TestDebugTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fetcher := &fakeFetcher{t: t, vars: sampleVariables()}
	loader := New(fetcher, Options{
		ConfigName: testConfig,
		Project:    testProject,
		Filter:     envmap.NewFilterSpec([]string{"var2"}, nil),
		Override:   true,
		Debug:      true,
	}, zap.New(core))

	env := envmap.NewMemoryEnvironment(map[string]string{"VAR1": "original"})
	if _, err := loader.ModifyEnv(context.Background(), env); err != nil {
		t.Fatalf("ModifyEnv returned error: %v", err)
	}

	counts := map[string]int{}
	for _, entry := range logs.All() {
		counts[entry.Message]++
	}
	want := map[string]int{
		"loading config":           1,
		"skipping config variable": 1,
		"found config variable":    3,
		"overriding envvar":        1,
		"setting envvar":           2,
	}
	for msg, n := range want {
		if counts[msg] != n {
			t.Fatalf("expected %d %q entries, got %d (all: %v)", n, msg, counts[msg], counts)
		}
	}
}

func TestDebugTraceDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fetcher := &fakeFetcher{t: t, vars: sampleVariables()}
	loader := New(fetcher, Options{ConfigName: testConfig, Project: testProject}, zap.New(core))

	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no trace output without debug, got %d entries", logs.Len())
	}
}

func TestSnakeKeyStyle(t *testing.T) {
	fetcher := &fakeFetcher{t: t, vars: []transform.RawVariable{{Name: "dbHost", Text: "localhost"}}}
	loader := New(fetcher, Options{ConfigName: testConfig, Project: testProject, KeyStyle: transform.StyleSnake}, zaptest.NewLogger(t))

	env, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, _ := env.Lookup("DB_HOST"); got != "localhost" {
		t.Fatalf("expected DB_HOST=localhost, got %v", env.Map())
	}
}

func TestAccessors(t *testing.T) {
	loader := New(&fakeFetcher{t: t}, Options{ConfigName: " cfg ", Project: "proj"}, nil)
	if loader.ConfigName() != "cfg" || loader.Project() != "proj" {
		t.Fatalf("unexpected accessors %q %q", loader.ConfigName(), loader.Project())
	}
}
