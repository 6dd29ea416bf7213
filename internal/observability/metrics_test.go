package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}

func TestIncInvalidationKinds(t *testing.T) {
	before := counterValue(t, syncInvalidationsTotal.WithLabelValues("user_friends"))
	IncInvalidation("user:u-1:friends")
	assert.Equal(t, before+1, counterValue(t, syncInvalidationsTotal.WithLabelValues("user_friends")))

	before = counterValue(t, syncInvalidationsTotal.WithLabelValues("chat"))
	IncInvalidation("chat:42")
	assert.Equal(t, before+1, counterValue(t, syncInvalidationsTotal.WithLabelValues("chat")))
}

func TestIncRefreshResult(t *testing.T) {
	before := counterValue(t, syncRefreshesTotal.WithLabelValues("chats", "error"))
	IncRefresh("chats", errors.New("boom"))
	assert.Equal(t, before+1, counterValue(t, syncRefreshesTotal.WithLabelValues("chats", "error")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetricsMiddleware())
	router.GET("/chats", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := counterValue(t, httpRequestsTotal.WithLabelValues("GET", "/chats", "200"))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/chats", nil))
	assert.Equal(t, before+1, counterValue(t, httpRequestsTotal.WithLabelValues("GET", "/chats", "200")))
}
