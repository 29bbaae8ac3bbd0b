// Package application provides application initialization and dependency wiring.
// It resolves credentials and the target project, builds the authorized
// Runtime Configurator client and the loader, and replaces the process with
// the requested command, keeping the main package focused on CLI parsing.
package application
