package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "leading zero replaced",
			input:  "08123456789",
			want:   "628123456789",
			wantOK: true,
		},
		{
			name:   "bare local number prefixed",
			input:  "8123456789",
			want:   "628123456789",
			wantOK: true,
		},
		{
			name:   "already international unchanged",
			input:  "628123456789",
			want:   "628123456789",
			wantOK: true,
		},
		{
			name:   "formatting stripped",
			input:  "+62 812-3456-789",
			want:   "628123456789",
			wantOK: true,
		},
		{
			name:   "too short after cleanup",
			input:  "0812345",
			wantOK: false,
		},
		{
			name:   "empty input",
			input:  "",
			wantOK: false,
		},
		{
			name:   "no digits at all",
			input:  "not a number",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
