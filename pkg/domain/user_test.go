package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name     string
		userName *string
		want     string
	}{
		{
			name:     "name is nil",
			userName: nil,
			want:     "test@example.com",
		},
		{
			name:     "name is set",
			userName: stringPtr("Test User"),
			want:     "Test User",
		},
		{
			name:     "name is empty string",
			userName: stringPtr(""),
			want:     "test@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{
				ID:    uuid.New(),
				Email: "test@example.com",
				Name:  tt.userName,
			}

			if got := user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func stringPtr(s string) *string {
	return &s
}
