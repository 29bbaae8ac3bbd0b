// Package config loads the tool's own settings from multiple sources (YAML
// files, environment variables, CLI flags) with precedence: CLI flags > YAML
// config > Environment variables > Defaults.
package config
