package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	assert.Equal(t, "10.0.0.1", IPFromRequest(r))

	r.Header.Set("X-Real-IP", "192.168.1.5")
	assert.Equal(t, "192.168.1.5", IPFromRequest(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.2")
	assert.Equal(t, "203.0.113.7", IPFromRequest(r))
}

func TestRequestAndDeviceIDs(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, RequestIDFromRequest(r))

	r.Header.Set("x-request-id", "req-1")
	r.Header.Set("x-device-id", " phone ")
	assert.Equal(t, "req-1", RequestIDFromRequest(r))
	assert.Equal(t, "phone", DeviceIDFromRequest(r))
}
