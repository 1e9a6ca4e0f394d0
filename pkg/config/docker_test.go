package config

import (
	"testing"
)

func TestResolveHostForDocker_NonLoopbackUnchanged(t *testing.T) {
	// These hosts are never rewritten regardless of Docker status.
	for _, host := range []string{"mydb.example.com", "192.168.1.100", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}
}

func TestRewriteURLHost(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "localhost with port",
			input: "postgresql://app:pw@localhost:5432/shop",
			want:  "postgresql://app:pw@host.docker.internal:5432/shop",
		},
		{
			name:  "loopback ip without port",
			input: "mysql://root@127.0.0.1/shop",
			want:  "mysql://root@host.docker.internal/shop",
		},
		{
			name:  "remote host untouched",
			input: "postgresql://app:pw@db.internal:5432/shop",
			want:  "postgresql://app:pw@db.internal:5432/shop",
		},
		{
			name:  "unparseable untouched",
			input: "::not a url",
			want:  "::not a url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewriteURLHost(tt.input); got != tt.want {
				t.Errorf("rewriteURLHost(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
