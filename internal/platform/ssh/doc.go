// Package ssh runs commands and uploads files on cluster instances using the
// key docker-machine generated for them.
package ssh
