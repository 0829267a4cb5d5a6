package transport

import (
	"net/http"

	"go.uber.org/zap"
)

// NormalizeTransport converts failures into *StatusError. Responses below 400
// pass through untouched so http.Client can follow redirects and callers see
// 304s.
type NormalizeTransport struct {
	Base   http.RoundTripper
	Logger *zap.Logger
}

func (t *NormalizeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := base(t.Base).RoundTrip(req)
	if err != nil {
		logger(t.Logger).Debug("request failed without response",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return nil, NewTransportError(err)
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	se := NewStatusError(resp)
	logger(t.Logger).Debug("request rejected",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", se.Status),
	)
	return nil, se
}

func base(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
