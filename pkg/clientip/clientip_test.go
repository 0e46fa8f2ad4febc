package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRemoteAddr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::ffff:10.0.0.1]:443", "10.0.0.1"},
		{"[2001:db8::1]:8080", "2001:db8::1"},
		{"192.168.1.5", "192.168.1.5"},
		{" 127.0.0.1:1 ", "127.0.0.1"},
		{"@", "@"},
		{"", Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromRemoteAddr(tt.addr), tt.addr)
	}
}

func TestRealClientIPIgnoresForwardedHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:5000"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.7", RealClientIP(r))
}
