package hcloud

import (
	"errors"
	"slices"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// transient reports whether the API rejected a call only because another
// action holds the resource.
func transient(err error) bool {
	return hasCode(err,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable,
	)
}

func hasCode(err error, codes ...hcloud.ErrorCode) bool {
	var apiErr hcloud.Error
	return errors.As(err, &apiErr) && slices.Contains(codes, apiErr.Code)
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	return hasCode(err, hcloud.ErrorCodeNotFound)
}

// IsAlreadyApplied reports whether a firewall was already attached to the resource.
func IsAlreadyApplied(err error) bool {
	return hasCode(err, hcloud.ErrorCodeFirewallAlreadyApplied)
}
