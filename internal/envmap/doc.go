// Package envmap models the environment that fetched variables are written to
// and implements the include/exclude filter and the override-or-preserve merge
// policy. The live process environment is just one Environment; tests use
// MemoryEnvironment.
package envmap
