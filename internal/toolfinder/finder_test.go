package toolfinder

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"cwebp 1.3.2\n", "1.3.2"},
		{"oxipng 9.1.1\ncompiled with zopfli", "9.1.1"},
		{"pngquant 2.18.0\n", "2.18.0"},
		{"mozjpeg version 4.1.1", "mozjpeg version 4.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := parseVersion(tt.output); got != tt.want {
				t.Errorf("parseVersion(%q) = %q, want %q", tt.output, got, tt.want)
			}
		})
	}
}

func TestNewDerivesEnvVar(t *testing.T) {
	f := New("cwebp", "")
	if f.EnvVar != "OPTIQ_CWEBP" {
		t.Errorf("EnvVar = %q, want OPTIQ_CWEBP", f.EnvVar)
	}
}

func TestFindFailsForMissingCustomPath(t *testing.T) {
	f := New("does-not-exist-binary", "/nonexistent/path/to/tool")
	if _, err := f.Find(); err == nil {
		t.Error("Find() should fail for a nonexistent custom path with no other candidates on PATH")
	}
}
