package main

import (
	"testing"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "single",
			in:   []string{"X-Token: abc"},
			want: map[string]string{"X-Token": "abc"},
		},
		{
			name: "value with colon",
			in:   []string{"Referer: https://example.com/", "Accept:text/html"},
			want: map[string]string{"Referer": "https://example.com/", "Accept": "text/html"},
		},
		{
			name:    "missing colon",
			in:      []string{"X-Token"},
			wantErr: true,
		},
		{
			name:    "empty name",
			in:      []string{": value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeaders(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseHeaders() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
