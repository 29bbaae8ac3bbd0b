// Package logging builds the zap logger used for diagnostics and the debug trace.
package logging
