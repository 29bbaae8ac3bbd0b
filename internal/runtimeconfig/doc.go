// Package runtimeconfig reads variables from the Google Cloud Runtime
// Configurator API. It follows the listing endpoint's pages strictly in
// sequence and supplies the retrying, rate limited HTTP transport used for it.
package runtimeconfig
