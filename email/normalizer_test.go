package email

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t", ""},
		{"already canonical", "info@agencia.com.ar", "info@agencia.com.ar"},
		{"trim and lower", "  Ventas@Agencia.COM ", "ventas@agencia.com"},
		{"(at) token and missing .com", "juan(at)gmail", "juan@gmail.com"},
		{"[at] token", "reservas[at]turismo.com", "reservas@turismo.com"},
		{"(arroba) token", "ana(arroba)hotmail.com", "ana@hotmail.com"},
		{"[arroba] token", "ana[arroba]viajes.net", "ana@viajes.net"},
		{"missing .com on hotmail", "maria@hotmail", "maria@hotmail.com"},
		{"missing .com on yahoo", "pepe@yahoo", "pepe@yahoo.com"},
		{"missing @ before gmail.com", "juangmail.com", "juan@gmail.com"},
		{"missing @ before hotmail.com", "turismo.surhotmail.com", "turismo.sur@hotmail.com"},
		{"missing @ before yahoo.com", "pepeyahoo.com", "pepe@yahoo.com"},
		{"stray punctuation", "<info@agencia.com>;", "info@agencia.com"},
		{"inner spaces", "info @ agencia .com", "info@agencia.com"},
		{"spaced token", "juan (at) gmail.com", "juan@gmail.com"},
		{"domain repair is case sensitive before lowering", "Info@Yahoo.com.ar", "info@yahoo.com.ar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain words", "not an email!!"},
		{"no domain dot", "juan@agencia"},
		{"two at signs", "a@b@c.com"},
		{"only at", "@"},
		{"missing local part", "@agencia.com"},
		{"placeholder", "No disponible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.Error(t, err)
			assert.Empty(t, got)

			var invalid *InvalidError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.input, invalid.Raw, "raw value must be the original input")
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"juan(at)gmail",
		"maria@hotmail",
		"juangmail.com",
		"  Ventas@Agencia.COM ",
		"reservas[at]turismo.com",
		"info@agencia.com.ar",
		"pepe@yahoo.co",
		"",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first, err := Normalize(in)
			require.NoError(t, err)
			second, err := Normalize(first)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestNormalizeOrderMatters(t *testing.T) {
	// Stripping before the domain repair would turn "(at)" into "at" and lose the address.
	got, err := Normalize("name(at)gmail")
	require.NoError(t, err)
	assert.Equal(t, "name@gmail.com", got)
}
