package gmail

import "testing"

func TestCodeFromInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"4/abc123", "4/abc123", false},
		{"  4/abc123\n", "4/abc123", false},
		{"http://127.0.0.1:9999/?state=state-token&code=4%2Fxyz", "4/xyz", false},
		{"https://127.0.0.1:9999/?error=access_denied", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := codeFromInput(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("codeFromInput(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("codeFromInput(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("codeFromInput(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
