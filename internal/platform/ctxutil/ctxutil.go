package ctxutil

import (
	"context"
	"strings"
)

type (
	requestDataKey struct{}
	traceDataKey   struct{}
)

// RequestData is the caller identity forwarded by the auth layer in front of
// this service.
type RequestData struct {
	UserID string
	Email  string
	Role   string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

func (rd *RequestData) IsAdmin(adminEmails []string) bool {
	if rd == nil {
		return false
	}
	if strings.EqualFold(rd.Role, "admin") {
		return true
	}
	for _, e := range adminEmails {
		if rd.Email != "" && strings.EqualFold(e, rd.Email) {
			return true
		}
	}
	return false
}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}
