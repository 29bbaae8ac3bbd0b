// Package credentials resolves the identity and the target project used to
// read Runtime Configurator variables. Project resolution is an ordered chain
// of sources where the first non-empty value wins; sources that fail are
// skipped rather than aborting the chain.
package credentials
