package errors

import (
	"strings"
	"testing"
)

func TestValidateTypeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "Invoice", false},
		{"valid dotted", "billing.Invoice", false},
		{"valid dashed", "test-doc", false},
		{"valid path prefix", "app/models.User", false},
		{"valid nested", "billing.Invoice.Status", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"reserved prefix", "_type", true},
		{"double dot", "billing..Invoice", true},
		{"trailing dot", "billing.", true},
		{"space", "billing Invoice", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTypeName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTypeName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidRegistration) {
				t.Errorf("ValidateTypeName(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidRegistration)
			}
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "tests", false},
		{"valid dotted", "app.documents", false},

		{"empty", "", true},
		{"too long", strings.Repeat("c", 256), true},
		{"dollar", "tests$", true},
		{"null byte", "te\x00sts", true},
		{"system prefix", "system.users", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCollectionName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDatabaseName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "test", false},
		{"valid underscore", "app_prod", false},

		{"empty", "", true},
		{"too long", strings.Repeat("d", 64), true},
		{"dot", "app.prod", true},
		{"slash", "app/prod", true},
		{"space", "app prod", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatabaseName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDatabaseName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
