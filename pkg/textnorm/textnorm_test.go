// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/bazaar/pkg/textnorm"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase_passthrough", "alice@x.com", "alice@x.com"},
		{"mixed_case", "Alice@X.Com", "alice@x.com"},
		{"surrounding_space", "  bob@x.com\t", "bob@x.com"},
		{"ascii_upper", "STRASSE@x.de", "strasse@x.de"},
		{"eszett_kept", "Straße@x.de", "straße@x.de"},
		{"non_ascii_upper", "ÉLODIE@x.fr", "élodie@x.fr"},
		{"nfc", "Cafe\u0301@x.fr", "caf\u00e9@x.fr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textnorm.Email(tt.in))
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Alice", "Alice"},
		{"trim_and_collapse", "  Alice   Smith ", "Alice Smith"},
		{"control_chars", "Ali\x00ce", "Alice"},
		{"nfc", "Cafe\u0301", "Caf\u00e9"},
		{"blank", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textnorm.Name(tt.in))
		})
	}
}
