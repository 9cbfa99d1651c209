package carrier

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// loggingRoundTripper logs every outgoing carrier request at debug level.
type loggingRoundTripper struct {
	next http.RoundTripper
	log  *zap.Logger
}

func (lrt *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := lrt.next.RoundTrip(req)
	if err != nil {
		lrt.log.Warn("carrier request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	lrt.log.Debug("carrier request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// NewHTTPClient returns the http.Client adapters share: bounded timeout plus request logging.
func NewHTTPClient(timeout time.Duration, log *zap.Logger) *http.Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingRoundTripper{next: http.DefaultTransport, log: log},
	}
}
