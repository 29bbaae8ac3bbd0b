// Package transform reshapes Runtime Configurator variable records into
// environment variable keys and string values.
package transform
