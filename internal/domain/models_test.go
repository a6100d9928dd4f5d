package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		name        string
		accountName string
		want        string
	}{
		{"simple name", "Acme", "Acme_Account_Plan_v1_locked.docx"},
		{"spaces become underscores", "St. Veronica Health System", "St_Veronica_Health_System_Account_Plan_v1_locked.docx"},
		{"empty falls back", "", "Account_Plan_Output_Account_Plan_v1_locked.docx"},
		{"placeholder falls back", "Not Available - official account name", "Account_Plan_Output_Account_Plan_v1_locked.docx"},
		{"only symbols falls back", "***", "Account_Plan_Output_Account_Plan_v1_locked.docx"},
		{"path traversal stripped", "../../etc/passwd", "etcpasswd_Account_Plan_v1_locked.docx"},
		{"leading and trailing space", "  Omega Health  ", "Omega_Health_Account_Plan_v1_locked.docx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputFilename(tt.accountName); got != tt.want {
				t.Errorf("OutputFilename(%q) = %q, want %q", tt.accountName, got, tt.want)
			}
		})
	}

	if got := OutputFilename("TBD - account name", "TBD"); got != "Account_Plan_Output_Account_Plan_v1_locked.docx" {
		t.Errorf("OutputFilename with custom placeholder = %q", got)
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		custom string
		want   bool
	}{
		{"blank", "  ", "", true},
		{"canonical", "Not Available - owner", "", true},
		{"canonical with custom configured", "Not Available - owner", "TBD", true},
		{"custom", "TBD", "TBD", true},
		{"custom not configured", "TBD", "", false},
		{"real value", "Acme", "TBD", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlaceholder(tt.value, tt.custom); got != tt.want {
				t.Errorf("IsPlaceholder(%q, %q) = %v, want %v", tt.value, tt.custom, got, tt.want)
			}
		})
	}
}

func TestAccountName(t *testing.T) {
	tests := []struct {
		name string
		plan map[string]any
		want string
	}{
		{"present", map[string]any{"account_overview": map[string]any{"account_name": " Acme "}}, "Acme"},
		{"missing section", map[string]any{}, ""},
		{"section wrong type", map[string]any{"account_overview": "N/A"}, ""},
		{"name wrong type", map[string]any{"account_overview": map[string]any{"account_name": 7}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccountName(tt.plan); got != tt.want {
				t.Errorf("AccountName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"validation", ValidationError("bad", nil), ErrorTypeValidation},
		{"input too short", InputTooShortError(3, 10), ErrorTypeInputTooShort},
		{"parse", ExtractionParseError("{", cause), ErrorTypeExtractionParse},
		{"shape", InvalidShapeError("string"), ErrorTypeInvalidShape},
		{"render", RenderError("template", cause), ErrorTypeRender},
		{"api", APIError("status 500", nil), ErrorTypeAPI},
		{"config", ConfigError("port", nil), ErrorTypeConfig},
		{"io", IOError("read", cause), ErrorTypeIO},
		{"wrapped", fmt.Errorf("pipeline: %w", RenderError("x", nil)), ErrorTypeRender},
		{"plain", cause, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.err); got != tt.want {
				t.Errorf("TypeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorSentinels(t *testing.T) {
	err := fmt.Errorf("generate: %w", InputTooShortError(4, 10))
	if !errors.Is(err, ErrInputTooShort) {
		t.Error("expected errors.Is(err, ErrInputTooShort)")
	}
	if errors.Is(err, ErrInvalidShape) {
		t.Error("input-too-short must not match ErrInvalidShape")
	}
	if !errors.Is(InvalidShapeError("list"), ErrInvalidShape) {
		t.Error("expected errors.Is(err, ErrInvalidShape)")
	}
}

func TestRawOf(t *testing.T) {
	err := fmt.Errorf("llm: %w", ExtractionParseError(`{"a": `, errors.New("unexpected EOF")))
	if got := RawOf(err); got != `{"a": ` {
		t.Errorf("RawOf() = %q", got)
	}
	if got := RawOf(errors.New("x")); got != "" {
		t.Errorf("RawOf(plain) = %q, want empty", got)
	}
}

func TestError_Message(t *testing.T) {
	err := IOError("read template", errors.New("no such file"))
	want := "[io] read template: no such file"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if got := ValidationError("empty path", nil).Error(); got != "[validation] empty path" {
		t.Errorf("Error() = %q", got)
	}
}
