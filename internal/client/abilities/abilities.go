// Package abilities derives a subject's capability rules from its roles.
//
// A RuleSet is a plain set of allow-rules: a subject may perform an action
// on a resource if any rule grants it. There is no deny/override
// precedence, so rule order never affects the outcome.
package abilities

import "encoding/json"

// Known roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Wildcard matches any action or subject type in a rule.
const Wildcard = "*"

// Rule is a single allow-grant: action on a subject type, optionally
// constrained by field conditions that the resource must satisfy.
type Rule struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
	// Conditions maps resource field names to required values. An empty
	// map means the rule matches unconditionally.
	Conditions map[string]any `json:"conditions,omitempty"`
}

// Resource is the attribute view of the object an action targets.
type Resource map[string]any

// RuleSet is the full capability set of a subject. The zero value denies
// everything.
type RuleSet []Rule

// Can reports whether any rule grants action on the given subject type
// for a resource with the given attributes.
func (rs RuleSet) Can(action, subject string, resource Resource) bool {
	for _, r := range rs {
		if r.matches(action, subject, resource) {
			return true
		}
	}
	return false
}

func (r Rule) matches(action, subject string, resource Resource) bool {
	if r.Action != Wildcard && r.Action != action {
		return false
	}
	if r.Subject != Wildcard && r.Subject != subject {
		return false
	}
	for field, want := range r.Conditions {
		got, ok := lookup(resource, field)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// lookup resolves a possibly dotted field path ("user_metadata.public")
// against the resource attributes.
func lookup(resource Resource, field string) (any, bool) {
	var cur any = map[string]any(resource)
	start := 0
	for i := 0; i <= len(field); i++ {
		if i < len(field) && field[i] != '.' {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[field[start:i]]
		if !ok {
			return nil, false
		}
		start = i + 1
	}
	return cur, true
}

// DefineFor is the master list of capabilities per role. It is a pure
// function: the same roles and subject id always produce the same rules.
func DefineFor(roles []string, subjectID string) RuleSet {
	var rules RuleSet
	for _, role := range roles {
		switch role {
		case RoleMember:
			// members can view other people's profiles if they are public
			rules = append(rules, Rule{
				Action:     "read",
				Subject:    "Profile",
				Conditions: map[string]any{"user_metadata.public": true},
			})
			// and update their own profiles
			rules = append(rules, Rule{
				Action:     "update",
				Subject:    "Profile",
				Conditions: map[string]any{"user_id": subjectID},
			})
		case RoleAdmin:
			// administrators can basically do anything
			rules = append(rules, Rule{Action: Wildcard, Subject: Wildcard})
		}
	}
	return rules
}

// Decode reconstructs a RuleSet from its serialized snapshot form.
func Decode(raw json.RawMessage) (RuleSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}
