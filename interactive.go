package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValidationError represents an invalid console answer
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// validateGroupCount checks the number of groups of a session
func validateGroupCount(n int) error {
	if n < MinGroups || n > MaxGroups {
		return ValidationError{"groups", fmt.Sprintf("must be between %d and %d", MinGroups, MaxGroups)}
	}
	return nil
}

// parseLeverSelection turns "1, 3 sobriety" into lever ids. Entries are
// either 1-based catalog positions or lever ids.
func parseLeverSelection(input string, catalog *Catalog) ([]string, error) {
	levers := catalog.Levers()
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	var ids []string
	for _, field := range fields {
		if n, err := strconv.Atoi(field); err == nil {
			if n < 1 || n > len(levers) {
				return nil, ValidationError{"cards", fmt.Sprintf("%d is not between 1 and %d", n, len(levers))}
			}
			ids = append(ids, levers[n-1].ID)
			continue
		}
		ids = append(ids, field)
	}
	canonical, err := catalog.Canonical(ids)
	if err != nil {
		return nil, ValidationError{"cards", err.Error()}
	}
	return canonical, nil
}

// InteractiveSession runs a facilitation session on the console
type InteractiveSession struct {
	reader    *bufio.Reader
	out       io.Writer
	dashboard *Dashboard
}

// NewInteractiveSession creates a session reading answers from in
func NewInteractiveSession(dashboard *Dashboard, in io.Reader, out io.Writer) *InteractiveSession {
	return &InteractiveSession{
		reader:    bufio.NewReader(in),
		out:       out,
		dashboard: dashboard,
	}
}

// promptLine asks a question; an empty answer returns defaultVal
func (s *InteractiveSession) promptLine(prompt, defaultVal string) (string, error) {
	if defaultVal != "" {
		fmt.Fprintf(s.out, "%s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(s.out, "%s: ", prompt)
	}
	input, err := s.reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal, nil
	}
	return input, nil
}

// promptGroupCount asks for the number of groups until the answer is valid
func (s *InteractiveSession) promptGroupCount() (int, error) {
	defaultVal := s.dashboard.GroupCount()
	for {
		input, err := s.promptLine("Nombre de groupes", strconv.Itoa(defaultVal))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(s.out, "  ✗ %q n'est pas un nombre\n", input)
			continue
		}
		if err := validateGroupCount(n); err != nil {
			fmt.Fprintf(s.out, "  ✗ %s\n", err)
			continue
		}
		return n, nil
	}
}

// promptSelection asks for the cards of one group until the answer is valid
func (s *InteractiveSession) promptSelection(group int) ([]string, error) {
	current, _ := s.dashboard.Selection(group)
	for {
		input, err := s.promptLine(fmt.Sprintf("Cartes du groupe %d", group), strings.Join(current, ","))
		if err != nil {
			return nil, err
		}
		ids, err := parseLeverSelection(input, s.dashboard.Catalog())
		if err != nil {
			fmt.Fprintf(s.out, "  ✗ %s\n", err)
			continue
		}
		return ids, nil
	}
}

// Run asks for the groups and their cards, then prints every scenario and the comparison
func (s *InteractiveSession) Run() error {
	cfg := s.dashboard.Config()
	PrintHeader(s.out, cfg)

	n, err := s.promptGroupCount()
	if err != nil {
		return err
	}
	if err := s.dashboard.SetGroupCount(n); err != nil {
		return err
	}
	for group := 1; group <= n; group++ {
		ids, err := s.promptSelection(group)
		if err != nil {
			return err
		}
		if err := s.dashboard.Select(group, ids); err != nil {
			return err
		}
	}

	view, err := s.dashboard.View()
	if err != nil {
		return err
	}
	for _, g := range view.Groups {
		if g.Error != "" {
			fmt.Fprintf(s.out, "\n%s: ⚠️  %s\n", g.Title, g.Error)
			continue
		}
		bundle, err := s.dashboard.GroupResult(g.Index)
		if err != nil {
			return err
		}
		if err := PrintScenarioSummary(s.out, cfg, g.Title, g.Levers, bundle); err != nil {
			return err
		}
		PrintBarChart(s.out, g.Bars)
	}
	PrintComparison(s.out, view.Comparison)
	return nil
}
