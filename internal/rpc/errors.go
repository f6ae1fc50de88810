package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/item-routing-simulator/core"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/kb"
)

// ErrInvalidField marks a request field with the wrong type or range.
var ErrInvalidField = errors.New("invalid field")

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var ce *core.ConstructionError
	switch {
	case errors.Is(err, kb.ErrScenarioNotFound),
		errors.Is(err, kb.ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.As(err, &ce),
		errors.Is(err, ErrInvalidField),
		errors.Is(err, scenario.ErrInvalidScenario),
		errors.Is(err, scenario.ErrUnsupportedOperator),
		service.IsClientError(err):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrScoreOverflow):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
