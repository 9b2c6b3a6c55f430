// Package s3 fetches objects referenced by s3:// URIs, such as the load
// balancer certificate.
package s3
