package template

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		who  string
		want string
	}{
		{
			name: "name substituted",
			tpl:  "Halo {name}, selamat datang!",
			who:  "Ana",
			want: "Halo Ana, selamat datang!",
		},
		{
			name: "name substituted multiple times",
			tpl:  "{name}, benar ini {name}?",
			who:  "Budi",
			want: "Budi, benar ini Budi?",
		},
		{
			name: "labeled nik stripped with label",
			tpl:  "Hi {name}, NIK: {nik}",
			who:  "Ana",
			want: "Hi Ana, ",
		},
		{
			name: "labeled nik case-insensitive",
			tpl:  "Data anda nik: {nik} tercatat",
			who:  "Ana",
			want: "Data anda  tercatat",
		},
		{
			name: "label without colon",
			tpl:  "NIK {nik} terdaftar",
			who:  "Ana",
			want: " terdaftar",
		},
		{
			name: "bare nik placeholder stripped",
			tpl:  "Kode {nik} anda",
			who:  "Ana",
			want: "Kode  anda",
		},
		{
			name: "no placeholders",
			tpl:  "Pesan biasa",
			who:  "Ana",
			want: "Pesan biasa",
		},
		{
			name: "empty template",
			tpl:  "",
			who:  "Ana",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.tpl, tt.who)
			if got != tt.want {
				t.Errorf("Render(%q, %q) = %q, want %q", tt.tpl, tt.who, got, tt.want)
			}
		})
	}
}
