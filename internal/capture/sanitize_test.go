package capture

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain title",
			input: "Morning Stream 42",
			want:  "Morning Stream 42",
		},
		{
			name:  "path and shell characters",
			input: `a/b\c|d*e?f:g"h<i>j#k`,
			want:  "a_b_c_d_e_f_g_h_i_j_k",
		},
		{
			name:  "japanese title survives",
			input: "【歌枠】夜のうたわく🎤",
			want:  "【歌枠】夜のうたわく",
		},
		{
			name:  "emoji outside the BMP dropped",
			input: "stream 🎉 party 💯",
			want:  "stream  party ",
		},
		{
			name:  "decomposed accent normalized",
			input: "Café stream", // e + combining acute
			want:  "Café stream",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
