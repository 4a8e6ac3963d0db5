package soap

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Doer abstracts the HTTP round trip for testability.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPDoer returns an *http.Client suitable for production use.
func NewHTTPDoer(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// MockDoer simulates the report server for tests. Responses are queued per
// SOAP operation and served in order; the last one repeats.
type MockDoer struct {
	mu        sync.Mutex
	responses map[string][]mockResponse
	requests  []RecordedRequest
}

type mockResponse struct {
	status int
	body   string
	err    error
}

// RecordedRequest is a request observed by MockDoer.
type RecordedRequest struct {
	Operation string
	URL       string
	Username  string
	Password  string
	Body      string
}

// NewMockDoer creates an empty mock.
func NewMockDoer() *MockDoer {
	return &MockDoer{responses: make(map[string][]mockResponse)}
}

// AddResponse queues a response for op.
func (m *MockDoer) AddResponse(op string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[op] = append(m.responses[op], mockResponse{status: statusCode, body: body})
}

// AddError queues a transport error for op.
func (m *MockDoer) AddError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[op] = append(m.responses[op], mockResponse{err: err})
}

// Requests returns the requests seen so far.
func (m *MockDoer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	op := strings.TrimPrefix(strings.Trim(req.Header.Get("SOAPAction"), `"`), Namespace+"/")
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	user, pass, _ := req.BasicAuth()

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Operation: op,
		URL:       req.URL.String(),
		Username:  user,
		Password:  pass,
		Body:      string(body),
	})
	queue := m.responses[op]
	var next mockResponse
	switch len(queue) {
	case 0:
		m.mu.Unlock()
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader("Not Found")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	case 1:
		next = queue[0]
	default:
		next = queue[0]
		m.responses[op] = queue[1:]
	}
	m.mu.Unlock()

	if next.err != nil {
		return nil, fmt.Errorf("mock %s: %w", op, next.err)
	}
	return &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(strings.NewReader(next.body)),
		Header:     http.Header{"Content-Type": []string{"text/xml; charset=utf-8"}},
		Request:    req,
	}, nil
}
