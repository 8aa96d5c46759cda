package capture

import (
	"context"
	"fmt"
	"net"

	"github.com/hazyhaar/pagesnap/horosafe"
	"github.com/hazyhaar/pagesnap/kit"
)

// Upper bounds accepted from remote callers. The Go API has no bound.
const (
	MaxWidth  = 3840
	MaxHeight = 2160
)

// Endpoint exposes Capture as a transport-agnostic kit.Endpoint taking a
// Request (or *Request) and returning *Result.
func (s *Service) Endpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		switch r := req.(type) {
		case Request:
			return s.Capture(ctx, r)
		case *Request:
			return s.Capture(ctx, *r)
		}
		return nil, &Error{Op: "decode", Kind: ErrInvalidRequest, Err: fmt.Errorf("unexpected request type %T", req)}
	}
}

// Validate returns middleware rejecting requests a remote caller must not
// make: non-http(s) URLs, private targets (unless allowPrivate) and
// dimensions outside 1..MaxWidth x 1..MaxHeight. Zero dimensions mean
// "absent" and pass through to the defaults.
func Validate(allowPrivate bool, resolver horosafe.Resolver) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			r, ok := req.(Request)
			if !ok {
				if p, isPtr := req.(*Request); isPtr && p != nil {
					r, ok = *p, true
				}
			}
			if !ok {
				return next(ctx, req)
			}
			if err := validateRequest(ctx, r, allowPrivate, resolver); err != nil {
				return nil, err
			}
			return next(ctx, r)
		}
	}
}

func validateRequest(ctx context.Context, r Request, allowPrivate bool, resolver horosafe.Resolver) error {
	invalid := func(err error) error {
		return &Error{Op: "validate", URL: r.URL, Kind: ErrInvalidRequest, Err: err}
	}
	if r.Width < 0 || r.Width > MaxWidth {
		return invalid(fmt.Errorf("width must be within 1..%d", MaxWidth))
	}
	if r.Height < 0 || r.Height > MaxHeight {
		return invalid(fmt.Errorf("height must be within 1..%d", MaxHeight))
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	var err error
	if allowPrivate {
		_, err = horosafe.CheckURL(r.URL)
	} else {
		err = horosafe.ValidateURLContext(ctx, resolver, r.URL)
	}
	if err != nil {
		return invalid(err)
	}
	return nil
}
