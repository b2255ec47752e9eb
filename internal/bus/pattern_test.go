package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		key     string
		want    bool
	}{
		{
			name:    "exact match",
			pattern: "order.created",
			key:     "order.created",
			want:    true,
		},
		{
			name:    "star matches one segment",
			pattern: "order.*",
			key:     "order.created",
			want:    true,
		},
		{
			name:    "star does not match two segments",
			pattern: "order.*",
			key:     "order.created.extra",
			want:    false,
		},
		{
			name:    "hash matches one segment",
			pattern: "order.#",
			key:     "order.created",
			want:    true,
		},
		{
			name:    "hash matches trailing segments",
			pattern: "order.#",
			key:     "order.created.extra",
			want:    true,
		},
		{
			name:    "hash matches zero segments",
			pattern: "order.#",
			key:     "order",
			want:    true,
		},
		{
			name:    "bare hash matches everything",
			pattern: "#",
			key:     "location.updated",
			want:    true,
		},
		{
			name:    "star does not match zero segments",
			pattern: "order.*",
			key:     "order",
			want:    false,
		},
		{
			name:    "mid-pattern star",
			pattern: "order.*.shipped",
			key:     "order.42.shipped",
			want:    true,
		},
		{
			name:    "mid-pattern hash spans segments",
			pattern: "order.#.shipped",
			key:     "order.a.b.shipped",
			want:    true,
		},
		{
			name:    "prefix alone does not match",
			pattern: "order",
			key:     "order.created",
			want:    false,
		},
		{
			name:    "different key",
			pattern: "order.created",
			key:     "order.updated",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTopic(tt.pattern, tt.key))
		})
	}
}
