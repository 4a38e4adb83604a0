// Package galerr centralizes the keyword/threshold rules used to classify
// transport and vendor failures into the gateway's closed ErrorKind set,
// and wraps them with github.com/pkg/errors so a stack trace survives the
// hop from transport to facade.
package galerr

import (
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// networkKeywords is the case-insensitive substring set that marks a
// message as a retriable network failure, per spec §4.4.
var networkKeywords = []string{
	"timeout", "timed out", "connection reset", "dns again",
	"host not found", "socket hang up", "network", "connection refused",
}

// LooksLikeNetworkError reports whether msg contains one of the
// network-error keywords.
func LooksLikeNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range networkKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Wrap attaches a stack trace to err for propagation out of an adapter.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, message)
}

// Cause peels wrapping layers down to the innermost error.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// Normalize coerces any error into a *types.Error, defaulting to
// VendorError{kind: unknown} the way the facade's normalizeError does
// for anything an adapter, the resolver, or transport raised without
// already being typed. See spec §4.9/§7.
func Normalize(err error) *types.Error {
	if err == nil {
		return nil
	}
	if te, ok := types.AsError(err); ok {
		return te
	}
	return &types.Error{
		Kind:      types.VendorError,
		Message:   pkgerrors.Cause(err).Error(),
		Retriable: false,
		Meta:      map[string]any{"unknown": true},
	}
}
