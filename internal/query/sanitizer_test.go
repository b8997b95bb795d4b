package query

import "testing"

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain column", "service", false},
		{"underscore prefix", "_internal", false},
		{"mixed case", "ServiceName", false},
		{"empty", "", true},
		{"leading digit", "1col", true},
		{"embedded space", "a b", true},
		{"semicolon", "a;b", true},
		{"reserved word", "DROP", true},
		{"reserved word lowercase", "select", true},
		{"too long", string(make([]byte, 129)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "'hello'"},
		{"single quote", "o'brien", `'o\'brien'`},
		{"backslash", `a\b`, `'a\\b'`},
		{"backslash then quote", `\'`, `'\\\''`},
		{"null byte stripped", "a\x00b", "'ab'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteString(tt.input); got != tt.want {
				t.Errorf("quoteString(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuoteList(t *testing.T) {
	got := quoteList([]string{"api", "o'brien"})
	if got != `'api','o\'brien'` {
		t.Errorf("quoteList = %s", got)
	}
}

func TestSanitizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"iso utc", "2026-08-01T00:00:00Z", "2026-08-01 00:00:00"},
		{"iso millis", "2026-08-01T00:00:00.123Z", "2026-08-01 00:00:00.123"},
		{"positive offset", "2026-08-01T00:00:00+02:00", "2026-08-01 00:00:00"},
		{"already plain", "2026-08-01 00:00:00", "2026-08-01 00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeTimestamp(tt.input); got != tt.want {
				t.Errorf("sanitizeTimestamp(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeInterval(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid", "5 MINUTE", "5 MINUTE"},
		{"lowercase", "1 hour", "1 HOUR"},
		{"plural", "30 seconds", "30 SECOND"},
		{"padded", "  2 DAY  ", "2 DAY"},
		{"empty falls back", "", "5 MINUTE"},
		{"garbage falls back", "five minutes", "5 MINUTE"},
		{"injection falls back", "1 HOUR) err; DROP TABLE x", "5 MINUTE"},
		{"unknown unit falls back", "5 FORTNIGHT", "5 MINUTE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeInterval(tt.input); got != tt.want {
				t.Errorf("sanitizeInterval(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
