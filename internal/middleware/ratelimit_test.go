package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterThrottlesPerCaller(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/stats", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests = %v, want first two 200", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}

	// A different caller has its own budget.
	req := httptest.NewRequest("GET", "/stats", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh caller status = %d, want 200", rec.Code)
	}
}
