package chrome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpoint(t *testing.T) {
	testCases := []struct {
		name    string
		host    string
		port    int
		wantErr string
	}{
		{name: "valid", host: "127.0.0.1", port: 9222},
		{name: "valid hostname", host: "localhost", port: 1},
		{name: "empty host", host: "", port: 9222, wantErr: "host cannot be empty"},
		{name: "port zero", host: "127.0.0.1", port: 0, wantErr: "out of range"},
		{name: "port negative", host: "127.0.0.1", port: -1, wantErr: "out of range"},
		{name: "port too large", host: "127.0.0.1", port: 65536, wantErr: "out of range"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ep, err := NewEndpoint(tc.host, tc.port)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.host, ep.Host)
			assert.Equal(t, tc.port, ep.Port)
		})
	}
}

func TestEndpointAddr(t *testing.T) {
	ep := Endpoint{Host: "127.0.0.1", Port: 9222}
	assert.Equal(t, "127.0.0.1:9222", ep.Addr())
	assert.Equal(t, "http://127.0.0.1:9222", ep.String())

	v6 := Endpoint{Host: "::1", Port: 9222}
	assert.Equal(t, "[::1]:9222", v6.Addr())
}
