package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New("darkpool")
	m.OrdersSubmitted.WithLabelValues("SOL-USDC", "accepted").Inc()
	m.OrdersSubmitted.WithLabelValues("SOL-USDC", "accepted").Inc()
	m.BookDepth.WithLabelValues("SOL-USDC", "buy").Set(3)

	if got := testutil.ToFloat64(m.OrdersSubmitted.WithLabelValues("SOL-USDC", "accepted")); got != 2 {
		t.Errorf("orders_submitted_total = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `darkpool_book_depth{side="buy",symbol="SOL-USDC"} 3`) {
		t.Errorf("book depth missing from exposition:\n%s", body)
	}
}
