// Package openapi exposes the oracle over HTTP using huma on a standard
// library mux. Handlers translate between the JSON/hex surface and the
// oracle core, map the error taxonomy onto status codes, and trigger the
// best-effort Nostr publication after each successful mutation.
package openapi

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"oracle.mleku.dev/pkg/oracle"
	"oracle.mleku.dev/pkg/protocol/publish"
)

// Operations carries the dependencies of the HTTP handlers. Publisher may be
// nil, in which case nothing is sent to Nostr.
type Operations struct {
	Oracle    *oracle.T
	Publisher *publish.P
}

// Handler builds the HTTP handler with every operation registered.
func Handler(o *oracle.T, p *publish.P, name, version string) (
	h http.Handler,
) {
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig(name, version))
	huma.AutoRegister(api, &Operations{Oracle: o, Publisher: p})
	return mux
}

// httpError maps the stable error taxonomy onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, oracle.ErrInvalidArgument),
		errors.Is(err, oracle.ErrInvalidOutcome):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, oracle.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, oracle.ErrEventAlreadySigned):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError("oracle error", err)
	}
}
