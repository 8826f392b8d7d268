package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateConflict(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		dispatch map[string]any
		parsed   map[string]any
		want     bool
	}{
		{
			name:     "409 with duplicate and already exists",
			status:   409,
			dispatch: map[string]any{"errorMessage": "Duplicate creative: asset already exists"},
			want:     true,
		},
		{
			name:   "case insensitive, message on whole response",
			status: 409,
			parsed: map[string]any{"message": "DUPLICATE submission - record ALREADY EXISTS"},
			want:   true,
		},
		{
			name:   "nested response body object",
			status: 409,
			dispatch: map[string]any{"response": map[string]any{
				"body": map[string]any{"error": map[string]any{"message": "duplicate ad, already submitted"}},
			}},
			want: true,
		},
		{
			name:     "string body",
			status:   409,
			dispatch: map[string]any{"body": `{"detail":"Duplicate: creative already exists"}`},
			want:     true,
		},
		{
			name:     "409 with plain conflict",
			status:   409,
			dispatch: map[string]any{"errorMessage": "conflict updating record"},
			want:     false,
		},
		{
			name:     "both patterns must match the same message",
			status:   409,
			dispatch: map[string]any{"errorMessage": "duplicate key", "message": "record already exists"},
			want:     false,
		},
		{
			name:     "200 never fires",
			status:   200,
			dispatch: map[string]any{"errorMessage": "Duplicate creative: asset already exists"},
			want:     false,
		},
		{
			name:   "400 never fires",
			status: 400,
			parsed: map[string]any{"message": "duplicate, already exists"},
			want:   false,
		},
		{
			name:   "409 without any message",
			status: 409,
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateConflict(tt.status, tt.dispatch, tt.parsed))
		})
	}
}
