package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Variable is a peak picked for use in a formula. Only RFU takes part in evaluation; the other
// fields identify the peak for display.
type Variable struct {
	Name    string  `json:"name"`
	RFU     float64 `json:"rfu"`
	SizeBP  float64 `json:"size_bp"`
	Sample  string  `json:"sample"`
	Channel string  `json:"channel"`
}

func (v Variable) String() string {
	return fmt.Sprintf("%s = %.0f RFU (%.1f bp, %s %s)", v.Name, v.RFU, v.SizeBP, v.Sample, v.Channel)
}

// Variables is the table a formula is evaluated against
type Variables struct {
	order []string
	vars  map[string]Variable
}

// NewVariables returns an empty table
func NewVariables() *Variables {
	return &Variables{vars: make(map[string]Variable)}
}

// NormalizeName trims a user-entered name and replaces inner spaces with underscores
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Set adds or replaces a variable. The name is normalized and must be an identifier.
func (t *Variables) Set(v Variable) (Variable, error) {
	v.Name = NormalizeName(v.Name)
	if !validName(v.Name) {
		return v, fmt.Errorf("invalid variable name %q", v.Name)
	}
	if _, ok := t.vars[v.Name]; !ok {
		t.order = append(t.order, v.Name)
	}
	t.vars[v.Name] = v
	return v, nil
}

// Add stores v under the next free letter name (A, B, ..., Z, AA, AB, ...)
func (t *Variables) Add(v Variable) Variable {
	v.Name = t.NextName()
	t.order = append(t.order, v.Name)
	t.vars[v.Name] = v
	return v
}

// NextName returns the first letter name not in use
func (t *Variables) NextName() string {
	for i := 0; ; i++ {
		name := letterName(i)
		if _, ok := t.vars[name]; !ok {
			return name
		}
	}
}

// Remove deletes a variable
func (t *Variables) Remove(name string) {
	if _, ok := t.vars[name]; !ok {
		return
	}
	delete(t.vars, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Clear removes every variable
func (t *Variables) Clear() {
	t.order = nil
	t.vars = make(map[string]Variable)
}

// List returns the variables in insertion order
func (t *Variables) List() []Variable {
	out := make([]Variable, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.vars[n])
	}
	return out
}

// Env returns name → RFU for evaluation
func (t *Variables) Env() map[string]float64 {
	env := make(map[string]float64, len(t.vars))
	for n, v := range t.vars {
		env[n] = v.RFU
	}
	return env
}

// Names returns the defined names sorted
func (t *Variables) Names() []string {
	names := append([]string(nil), t.order...)
	sort.Strings(names)
	return names
}

// Evaluate parses src and evaluates it against the table
func (t *Variables) Evaluate(src string) (float64, error) {
	return Eval(src, t.Env())
}

// FormatResult renders a result the way it is reported to users
func FormatResult(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func letterName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func validName(name string) bool {
	if name == "" || !isIdentStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return false
		}
	}
	return true
}
