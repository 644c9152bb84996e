package status

import (
	"strings"
	"testing"
	"time"
)

func TestView(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		want  []string
	}{
		{
			name:  "offline defaults",
			model: Model{Width: 120},
			want:  []string{"Offline", "anonymous", "project none", "0 online"},
		},
		{
			name:  "connected with latency",
			model: Model{Connected: true, UserID: "7", Project: "42", Online: 3, Latency: 42 * time.Millisecond, Width: 120},
			want:  []string{"Connected", "user 7", "project 42", "3 online", "42ms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.model.View()
			for _, s := range tt.want {
				if !strings.Contains(v, s) {
					t.Errorf("view missing %q:\n%s", s, v)
				}
			}
		})
	}
}
