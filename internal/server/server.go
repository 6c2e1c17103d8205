// Package server serves one contract: negotiate, invoke the data source,
// shape the payload for the served version.
//
// Every server-side failure becomes data in the response error field. Serve
// never returns an error and never lets a data source panic escape.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/opencab/internal/contract"
	"github.com/danmuck/opencab/internal/observability"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
	"github.com/rs/zerolog/log"
)

// Server answers requests for one contract definition.
type Server struct {
	def contract.Contract
}

// New validates def and returns a server for it.
func New(def contract.Contract) (*Server, error) {
	if err := contract.Validate(def); err != nil {
		return nil, err
	}
	return &Server{def: def}, nil
}

// MustNew is New for static definitions.
func MustNew(def contract.Contract) *Server {
	s, err := New(def)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Server) Contract() contract.Contract {
	return s.def
}

func (s *Server) Authority() string {
	return s.def.Authority
}

// Serve handles one request. The call is synchronous and blocks for as long
// as the data source does.
func (s *Server) Serve(ctx context.Context, req protocol.Request) protocol.Response {
	start := time.Now()
	resp, outcome := s.serve(ctx, req)
	observability.RecordContractCall(s.def.Name, req.Method, resp.ServedVersion.String(), outcome, time.Since(start))

	event := log.Debug()
	if resp.Failed() {
		event = log.Warn().Str("error", resp.Error)
	}
	event.
		Str("contract", s.def.Name).
		Str("method", req.Method).
		Str("requested", req.Version.String()).
		Str("served", resp.ServedVersion.String()).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("server.Serve")
	return resp
}

func (s *Server) serve(ctx context.Context, req protocol.Request) (protocol.Response, string) {
	method, ok := s.def.Method(req.Method)
	if !ok {
		return failure(version.Version{}, fmt.Errorf("%w: %s", protocol.ErrUnknownMethod, req.Method)), observability.OutcomeError
	}
	served, err := contract.Negotiate(req.Version, s.def.Floor, method.Supported())
	if err != nil {
		return failure(version.Version{}, err), observability.OutcomeUnsupported
	}
	variant, _ := method.Variant(served)

	payload, panicked, err := invoke(ctx, variant.Handle, req.Extras)
	switch {
	case panicked:
		return failure(served, err), observability.OutcomePanic
	case errors.Is(err, protocol.ErrDataUnavailable):
		return failure(served, err), observability.OutcomeUnavailable
	case err != nil:
		return failure(served, err), observability.OutcomeError
	case payload.Len() == 0:
		return failure(served, fmt.Errorf("%w: %s returned nothing", protocol.ErrDataUnavailable, req.Method)), observability.OutcomeUnavailable
	}
	return protocol.Response{ServedVersion: served, Payload: payload}, observability.OutcomeOK
}

func invoke(ctx context.Context, h contract.Handler, extras protocol.Bundle) (payload protocol.Bundle, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = protocol.Bundle{}
			err = fmt.Errorf("data source panic: %v", r)
			panicked = true
		}
	}()
	payload, err = h(ctx, extras)
	return payload, false, err
}

func failure(served version.Version, err error) protocol.Response {
	return protocol.Response{ServedVersion: served, Error: err.Error()}
}
