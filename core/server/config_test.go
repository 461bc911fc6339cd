package server_test

import (
	"testing"

	"order-sync/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_BodyLimit(t *testing.T) {
	tests := []struct {
		name string
		mb   int
		want int
	}{
		{"Configured", 10, 10 * 1024 * 1024},
		{"Zero falls back", 0, 25 * 1024 * 1024},
		{"Negative falls back", -3, 25 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{MaxUploadMB: tt.mb}
			assert.Equal(t, tt.want, c.BodyLimit())
		})
	}
}
