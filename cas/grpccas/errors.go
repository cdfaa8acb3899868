package grpccas

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dropcat.dev/dropcat/cas"
)

// mapRPC translates gRPC status codes back into the cas sentinel errors so
// callers can use errors.Is regardless of which backend served them.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return cas.ErrNotFound
	case codes.InvalidArgument:
		return cas.ErrInvalidCID
	case codes.DataLoss:
		return cas.ErrCIDMismatch
	default:
		switch st.Message() {
		case cas.ErrNotFound.Error():
			return cas.ErrNotFound
		case cas.ErrInvalidCID.Error():
			return cas.ErrInvalidCID
		case cas.ErrCIDMismatch.Error():
			return cas.ErrCIDMismatch
		default:
			return err
		}
	}
}
