package reconcile

import "fmt"

type Mapper interface {
	Map(eventType, subtype string) Status
}

// Rule maps one (event type, subtype) pair. An empty Subtype matches any subtype
// that has no rule of its own.
type Rule struct {
	EventType string
	Subtype   string
	Status    Status
}

type ruleKey struct {
	eventType string
	subtype   string
}

// StatusTable is a lookup-table Mapper. It has no memory of previous states.
type StatusTable struct {
	exact map[ruleKey]Status
	other map[string]Status
	rules []Rule
}

// NewStatusTable panics on duplicate rules; tables are package-level literals.
func NewStatusTable(rules ...Rule) StatusTable {
	t := StatusTable{
		exact: make(map[ruleKey]Status, len(rules)),
		other: make(map[string]Status),
		rules: append([]Rule(nil), rules...),
	}
	for _, r := range rules {
		if r.Subtype == "" {
			if _, dup := t.other[r.EventType]; dup {
				panic(fmt.Sprintf("reconcile: duplicate rule for %s", r.EventType))
			}
			t.other[r.EventType] = r.Status
			continue
		}
		k := ruleKey{eventType: r.EventType, subtype: r.Subtype}
		if _, dup := t.exact[k]; dup {
			panic(fmt.Sprintf("reconcile: duplicate rule for %s/%s", r.EventType, r.Subtype))
		}
		t.exact[k] = r.Status
	}
	return t
}

func (t StatusTable) Map(eventType, subtype string) Status {
	if subtype != "" {
		if s, ok := t.exact[ruleKey{eventType: eventType, subtype: subtype}]; ok {
			return s
		}
	}
	if s, ok := t.other[eventType]; ok {
		return s
	}
	return StatusUnknown
}

// Rules returns the table rows in declaration order.
func (t StatusTable) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Known reports whether eventType has at least one rule.
func (t StatusTable) Known(eventType string) bool {
	if _, ok := t.other[eventType]; ok {
		return true
	}
	for k := range t.exact {
		if k.eventType == eventType {
			return true
		}
	}
	return false
}
