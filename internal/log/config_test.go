package log

import "testing"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"text", FormatText},
		{"Console", FormatText},
		{"", FormatJSON},
		{"yaml", FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warning", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings("debug", "text", "1.2.3")
	if cfg.Level != LevelDebug || cfg.Format != FormatText {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.ServiceVersion != "1.2.3" {
		t.Errorf("ServiceVersion = %q, want 1.2.3", cfg.ServiceVersion)
	}
	if FromSettings("", "", "").ServiceVersion != "dev" {
		t.Error("empty version should keep default")
	}
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig()
	if cfg.Level != LevelDebug || cfg.Format != FormatText || !cfg.AddSource {
		t.Errorf("unexpected development config: %+v", cfg)
	}
}
