// Package handler adapts API Gateway proxy events to the HTTP router so the
// same routes serve both the Lambda and the standalone server.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"energy-agent/internal/middleware"
)

type Handler struct {
	adapter *httpadapter.HandlerAdapter
}

func NewHandler(next http.Handler) (*Handler, error) {
	if next == nil {
		return nil, errors.New("handler: http handler must not be nil")
	}
	return &Handler{adapter: httpadapter.New(gatewayRequestID(next))}, nil
}

// Handle serves one proxy event. Routing and error mapping happen in the
// wrapped handler; only a malformed event produces a Go error here.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.adapter.ProxyWithContext(ctx, event)
}

// gatewayRequestID uses the API Gateway request id when the caller sent
// neither request id header.
func gatewayRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(middleware.RequestIDHeader) == "" && r.Header.Get(middleware.CorrelationIDHeader) == "" {
			if gw, ok := core.GetAPIGatewayContextFromContext(r.Context()); ok && gw.RequestID != "" {
				r.Header.Set(middleware.RequestIDHeader, gw.RequestID)
			}
		}
		next.ServeHTTP(w, r)
	})
}
