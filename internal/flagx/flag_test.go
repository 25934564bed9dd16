package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-d", "postgres://localhost/notes", "-x", "ignored"},
			allowed: []string{"-d"},
			want:    []string{"-d", "postgres://localhost/notes"},
		},
		{
			name:    "equals form",
			args:    []string{"--config=conf.json", "-other=1"},
			allowed: []string{"--config"},
			want:    []string{"--config=conf.json"},
		},
		{
			name:    "mixed forms",
			args:    []string{"-c=conf.json", "-m", "mirror.db", "-z"},
			allowed: []string{"-c", "-m"},
			want:    []string{"-c=conf.json", "-m", "mirror.db"},
		},
		{
			name:    "flag without value",
			args:    []string{"-d", "-m", "mirror.db"},
			allowed: []string{"-d", "-m"},
			want:    []string{"-d", "-m", "mirror.db"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-d", "dsn"},
			allowed: nil,
			want:    []string{},
		},
		{
			name:    "empty args",
			args:    nil,
			allowed: []string{"-d"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			assert.Equal(t, tt.want, got)
		})
	}
}
