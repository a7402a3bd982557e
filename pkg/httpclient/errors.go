package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

// ResponseError is a non 2xx answer from a remote service.
type ResponseError struct {
	Service string
	Status  int
	Body    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Body)
}

// ClientError reports whether the remote rejected the request itself (4xx).
func (e *ResponseError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// ReadResponseError drains and closes resp into a ResponseError.
// Call it only for non 2xx responses.
func ReadResponseError(resp *http.Response, service string) *ResponseError {
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &ResponseError{Service: service, Status: resp.StatusCode, Body: string(body)}
}
