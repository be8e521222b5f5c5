package service

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/policy"
)

// ResponseProcessor classifies the outcome of a transport call for one
// service. It may rewrite the response, turn a response into an error or
// recover from an error. It runs before the response event is emitted; the
// event records the upstream response as received. Returning a nil response
// without an error is reported as an internal error.
type ResponseProcessor interface {
	Process(ctx context.Context, cc *policy.CallContext, resp *Response, err error) (*Response, error)
}

// ProcessorFunc adapts a function to ResponseProcessor.
type ProcessorFunc func(ctx context.Context, cc *policy.CallContext, resp *Response, err error) (*Response, error)

func (f ProcessorFunc) Process(ctx context.Context, cc *policy.CallContext, resp *Response, err error) (*Response, error) {
	return f(ctx, cc, resp, err)
}

// DefaultProcessor passes 2xx and 3xx responses through and turns everything
// else into an upstream error. Transport errors are kept as they are.
type DefaultProcessor struct{}

func (DefaultProcessor) Process(_ context.Context, cc *policy.CallContext, resp *Response, err error) (*Response, error) {
	if err != nil {
		if _, ok := err.(*apperrors.AppError); ok {
			return resp, err
		}
		return resp, apperrors.NewTransport("transport failed", err)
	}
	if resp == nil {
		return nil, apperrors.NewTransport(fmt.Sprintf("%s/%s: transport returned no response", cc.Service, cc.Endpoint), nil)
	}
	if resp.StatusCode >= 400 {
		return resp, apperrors.New(apperrors.ErrUpstream,
			fmt.Sprintf("%s/%s returned HTTP %d", cc.Service, cc.Endpoint, resp.StatusCode), nil)
	}
	return resp, nil
}
