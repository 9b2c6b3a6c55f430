// Package destroy stops and removes instances in bulk.
package destroy
