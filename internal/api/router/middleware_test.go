package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhonePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "phone number masked except last digits",
			path: "/api/v1/context/+34612345678",
			want: "/api/v1/context/********5678",
		},
		{
			name: "initialize route untouched",
			path: "/api/v1/context/initialize",
			want: "/api/v1/context/initialize",
		},
		{
			name: "sweep route untouched",
			path: "/api/v1/context/sweep",
			want: "/api/v1/context/sweep",
		},
		{
			name: "other routes untouched",
			path: "/api/v1/messages/abc",
			want: "/api/v1/messages/abc",
		},
		{
			name: "short segment fully masked",
			path: "/api/v1/context/123",
			want: "/api/v1/context/***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskPhonePath(tt.path))
		})
	}
}
