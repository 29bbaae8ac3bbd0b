// Package errs defines the error classes surfaced by a load operation. Callers
// wrap them with fmt.Errorf and classify with errors.Is.
package errs
