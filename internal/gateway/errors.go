package gateway

import (
	"errors"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/vlc"
)

var (
	// ErrInvalid marks a request that cannot be decoded or has unknown
	// selectors.
	ErrInvalid = errors.New("gateway: invalid request")

	// ErrUnsupported marks a known kind/method pair the gateway does not
	// serve, such as merge logs by id.
	ErrUnsupported = errors.New("gateway: unsupported request")
)

// CodeFor maps an error returned by a Facade method to a response code.
func CodeFor(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalid), vlc.IsMalformed(err), vlc.IsHashMismatch(err):
		return CodeInvalid
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	default:
		return CodeInternal
	}
}
