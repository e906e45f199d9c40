package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesCodeAndReason(t *testing.T) {
	expired := Gone("award expired", nil, WithReason("EXPIRED"))
	claimed := Conflict("award already claimed", nil, WithReason("ALREADY_CLAIMED"))

	require.ErrorIs(t, expired, expired)
	require.ErrorIs(t, expired, Gone("", nil))
	require.NotErrorIs(t, expired, Gone("", nil, WithReason("OTHER")))
	require.NotErrorIs(t, claimed, Conflict("", nil, WithReason("DUPLICATE_REFERENCE")))
	require.NotErrorIs(t, claimed, expired)
	require.NotErrorIs(t, errors.New("plain"), expired)
}

func TestWrapKeepsSentinelIdentity(t *testing.T) {
	sentinel := BadGateway("crediting failed", nil, WithReason("EXTERNAL_SERVICE"))
	cause := errors.New("dial tcp: connection refused")

	err := Wrap(sentinel, cause)
	require.ErrorIs(t, err, sentinel)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("claim: %w", err)
	require.ErrorIs(t, wrapped, sentinel)

	var be BaseError
	require.ErrorAs(t, wrapped, &be)
	require.Equal(t, http.StatusBadGateway, be.Code.HTTPStatus())

	plain := errors.New("not a base error")
	require.Equal(t, plain, Wrap(plain, cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[CoreStatus]int{
		StatusValidationFailed:    http.StatusBadRequest,
		StatusNotFound:            http.StatusNotFound,
		StatusConflict:            http.StatusConflict,
		StatusGone:                http.StatusGone,
		StatusUnprocessableEntity: http.StatusUnprocessableEntity,
		StatusTooManyRequests:     http.StatusTooManyRequests,
		StatusBadGateway:          http.StatusBadGateway,
		StatusClientClosedRequest: 499,
		StatusInternal:            http.StatusInternalServerError,
		CoreStatus("bogus"):       http.StatusInternalServerError,
	}
	for status, want := range tests {
		require.Equal(t, want, status.HTTPStatus(), string(status))
	}
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "[not_found] award not found", NotFound("award not found", nil).Error())
	require.Equal(t, "[internal] boom: cause", Internal("boom", errors.New("cause")).Error())
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	tests := []struct {
		err  error
		want codes.Code
	}{
		{err: NotFound("award not found", nil), want: codes.NotFound},
		{err: Gone("award expired", nil), want: codes.FailedPrecondition},
		{err: fmt.Errorf("claim: %w", Conflict("already claimed", nil)), want: codes.AlreadyExists},
		{err: BadGateway("crediting failed", nil), want: codes.Unavailable},
		{err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{err: errors.New("boom"), want: codes.Internal},
	}
	for _, tt := range tests {
		st, ok := status.FromError(ToGRPCError(tt.err))
		require.True(t, ok)
		require.Equal(t, tt.want, st.Code(), tt.err.Error())
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := UnaryServerInterceptor()
	_, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test"}, func(ctx context.Context, req any) (any, error) {
		return nil, NotFound("missing", nil)
	})
	require.Equal(t, codes.NotFound, status.Code(err))
}
