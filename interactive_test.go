package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeverSelection(t *testing.T) {
	catalog := mustCatalog(t, loadTestConfig(t))

	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"1", []string{"sobriety"}},
		{"6, 1", []string{"sobriety", "technology"}},
		{"sobriety;modal_shift 4", []string{"modal_shift", "sobriety"}},
		{"  3 ,, 7 ", []string{"carbon_budget", "new_energies"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ids, err := parseLeverSelection(tt.input, catalog)
			require.NoError(t, err)
			if tt.expected == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestParseLeverSelection_Errors(t *testing.T) {
	catalog := mustCatalog(t, loadTestConfig(t))
	for _, input := range []string{"0", "10", "-1", "sobriety, rocket"} {
		t.Run(input, func(t *testing.T) {
			_, err := parseLeverSelection(input, catalog)
			var validationErr ValidationError
			require.True(t, errors.As(err, &validationErr), "error: %v", err)
			assert.Equal(t, "cards", validationErr.Field)
		})
	}
}

func TestValidateGroupCount(t *testing.T) {
	assert.NoError(t, validateGroupCount(MinGroups))
	assert.NoError(t, validateGroupCount(MaxGroups))
	assert.Error(t, validateGroupCount(0))
	assert.Error(t, validateGroupCount(11))
}

func TestInteractiveSession_Run(t *testing.T) {
	d := newTestDashboard(t, newCountingSimulator())
	input := strings.Join([]string{
		"twelve", // not a number
		"42",     // out of range
		"2",
		"1, 4",
		"rocket", // unknown card, asked again
		"",       // keeps the current (empty) selection
	}, "\n") + "\n"
	var out bytes.Buffer

	session := NewInteractiveSession(d, strings.NewReader(input), &out)
	require.NoError(t, session.Run())

	assert.Equal(t, 2, d.GroupCount())
	levers, err := d.Selection(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"modal_shift", "sobriety"}, levers)
	levers, err = d.Selection(2)
	require.NoError(t, err)
	assert.Empty(t, levers)

	text := out.String()
	assert.Contains(t, text, "FRESQUE AÉROMAPS")
	assert.Contains(t, text, `"twelve" n'est pas un nombre`)
	assert.Contains(t, text, "must be between 1 and 10")
	assert.Contains(t, text, "rocket")
	assert.Contains(t, text, "Scénario du groupe 1")
	assert.Contains(t, text, "Cartes: modal_shift, sobriety")
	assert.Contains(t, text, "COMPARAISON DES SCÉNARIOS DES GROUPES")
	assert.Contains(t, text, "(Identique au scénario de référence)")
}

func TestInteractiveSession_EndOfInput(t *testing.T) {
	d := newTestDashboard(t, newCountingSimulator())
	var out bytes.Buffer
	err := NewInteractiveSession(d, strings.NewReader("2\n"), &out).Run()
	assert.Error(t, err)
}
