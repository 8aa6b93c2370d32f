package thirdparty

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// MockWebhookServer 校验签名并记录收到的事件
type MockWebhookServer struct {
	*httptest.Server
	secret string

	mu       sync.Mutex
	events   []StandardEvent
	statuses []int // 按请求顺序返回的状态码，耗尽后返回 200
	calls    int
}

func NewMockWebhookServer(t *testing.T, secret string, statuses ...int) *MockWebhookServer {
	t.Helper()
	m := &MockWebhookServer{secret: secret, statuses: statuses}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

func (m *MockWebhookServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	ts, _ := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	canonical := buildCanonical(r.Method, r.URL.Path, ts, r.Header.Get("X-Nonce"), hashHex(body))
	if !VerifyHMAC(m.secret, canonical, r.Header.Get("X-Signature")) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	status := http.StatusOK
	if m.calls < len(m.statuses) {
		status = m.statuses[m.calls]
	}
	m.calls++
	if status == http.StatusOK {
		var ev StandardEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.events = append(m.events, ev)
	}
	w.WriteHeader(status)
}

func (m *MockWebhookServer) Events() []StandardEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StandardEvent(nil), m.events...)
}

func (m *MockWebhookServer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
