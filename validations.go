package excelts

import (
	"fmt"
	"strings"
)

// DataValidation is one validation rule, shaped after the worksheet markup
// element that carries it.
type DataValidation struct {
	Type             string // list, whole, decimal, date, time, textLength, custom
	Operator         string // between, notBetween, equal, ...
	Formula1         string
	Formula2         string
	AllowBlank       bool
	ShowInputMessage bool
	ShowErrorMessage bool
	PromptTitle      string
	Prompt           string
	ErrorStyle       string // stop, warning, information
	ErrorTitle       string
	Error            string
}

const (
	// Ranges spanning at most this many cells are expanded to per-cell
	// bindings; larger ones are kept whole and matched by containment.
	expandLimit = 1000

	rangeKeyPrefix = "range:"
)

// DataValidations indexes validation rules by cell address and range.
// Lookups prefer an exact address binding over any enclosing range, and
// among overlapping stored ranges the first one registered wins.
type DataValidations struct {
	model map[string]*DataValidation
	order []string
}

// NewDataValidations returns an empty index.
func NewDataValidations() *DataValidations {
	return &DataValidations{model: make(map[string]*DataValidation)}
}

// Add binds rule to an address, which may be a single cell ("B2"), a range
// ("B2:C8"), or a space-separated list of both. Every cell of a small range
// shares the one rule; a range wider than the expansion limit is stored
// whole. Cells already bound keep their earlier rule, so registration order
// settles overlaps. A malformed token rejects the whole address list and
// leaves nothing bound.
func (dv *DataValidations) Add(address string, rule *DataValidation) error {
	type binding struct {
		key   string
		exact bool
	}
	var plan []binding
	for _, token := range strings.Fields(address) {
		keys, exact, err := planToken(token)
		if err != nil {
			return err
		}
		for _, key := range keys {
			plan = append(plan, binding{key: key, exact: exact})
		}
	}
	for _, b := range plan {
		dv.bind(b.key, rule, b.exact)
	}
	return nil
}

// planToken resolves one address token into the keys it would bind, without
// touching the index.
func planToken(token string) (keys []string, exact bool, err error) {
	if !strings.Contains(token, ":") {
		if _, _, err := ParseRef(token); err != nil {
			return nil, false, fmt.Errorf("data validation address: %w", err)
		}
		return []string{token}, true, nil
	}
	rng, err := ParseRange(token)
	if err != nil {
		return nil, false, fmt.Errorf("data validation range: %w", err)
	}
	if rng.Cells() > expandLimit {
		return []string{rangeKeyPrefix + rng.String()}, false, nil
	}
	return rng.Refs(), false, nil
}

func (dv *DataValidations) bind(key string, rule *DataValidation, overwrite bool) {
	if _, seen := dv.model[key]; seen {
		if overwrite {
			dv.model[key] = rule
		}
		return
	}
	dv.model[key] = rule
	dv.order = append(dv.order, key)
}

// Find returns the rule bound at address, or nil. An explicit nil binding
// left by Remove suppresses any enclosing range.
func (dv *DataValidations) Find(address string) *DataValidation {
	if rule, ok := dv.model[address]; ok {
		return rule
	}
	row, col, err := ParseRef(address)
	if err != nil {
		return nil
	}
	for _, key := range dv.order {
		rangeStr, isRange := strings.CutPrefix(key, rangeKeyPrefix)
		if !isRange {
			continue
		}
		rule := dv.model[key]
		if rule == nil {
			continue
		}
		rng, err := ParseRange(rangeStr)
		if err != nil {
			continue
		}
		if rng.Contains(row, col) {
			return rule
		}
	}
	return nil
}

// Remove unbinds address. The address keeps an explicit empty binding, so a
// removed cell inside a stored range no longer matches the range.
func (dv *DataValidations) Remove(address string) {
	dv.bind(address, nil, true)
}

// validationGroup is one renderable rule with every address it applies to,
// in first-registration order.
type validationGroup struct {
	rule *DataValidation
	refs []string
}

// groups assembles the index for rendering: bindings sharing a rule merge
// into one group with a multi-address reference list.
func (dv *DataValidations) groups() []validationGroup {
	byRule := make(map[*DataValidation]int)
	var gs []validationGroup
	for _, key := range dv.order {
		rule := dv.model[key]
		if rule == nil {
			continue
		}
		ref := strings.TrimPrefix(key, rangeKeyPrefix)
		if gi, ok := byRule[rule]; ok {
			gs[gi].refs = append(gs[gi].refs, ref)
			continue
		}
		byRule[rule] = len(gs)
		gs = append(gs, validationGroup{rule: rule, refs: []string{ref}})
	}
	return gs
}
