package metaplane

import (
	"strconv"
	"strings"
)

// Constraint is a decoded theory constraint. Kind "unknown" means the
// constraint's body did not match any recognized shape and its original
// text is kept verbatim in Text (§4.F).
type Constraint struct {
	Kind          ConstraintKind
	Name          string // named-block constraint's declared name
	Relation      string
	SrcField      string
	DstField      string
	Max           int
	WhereField    string
	WhereInValues []string
	OnFields      []string
	KeyFields     []string
	RuleName      string
	Text          string
}

// decodeConstraintKind maps an axiimport.ConstraintDecl.Kind string (already
// produced by the parser) onto the typed ConstraintKind enum, defaulting to
// Unknown for anything the decoder does not recognize.
func decodeConstraintKind(raw string) ConstraintKind {
	switch ConstraintKind(raw) {
	case ConstraintFunctional, ConstraintAtMost, ConstraintTyping, ConstraintSymmetric,
		ConstraintSymmetricWhereIn, ConstraintTransitive, ConstraintKey, ConstraintNamedBlock:
		return ConstraintKind(raw)
	default:
		return ConstraintUnknown
	}
}

// redecodeNamedBlock re-parses a named-block constraint's opaque Text
// against the same textual shapes first-class constraints use (§6's
// grammar sketch: functional/at_most/key/symmetric/transitive/typing).
// This resolves Open Question (b) in §9: a named block whose body
// round-trips through this decoder in canonical form is accepted as its
// decoded kind; anything else stays ConstraintUnknown and blocks
// axi_constraints_ok_v1. Mirrors axiimport's parseConstraint — duplicated
// rather than imported because axiimport already depends on metaplane.
func redecodeNamedBlock(c Constraint) Constraint {
	body := strings.TrimSpace(strings.Join(strings.Fields(c.Text), " "))
	fields := strings.Fields(body)
	if len(fields) == 0 {
		c.Kind = ConstraintUnknown
		return c
	}
	kind := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(body, kind))
	switch kind {
	case "functional":
		if rel, src, dst, ok := parseFieldArrowText(rest); ok {
			c.Kind, c.Relation, c.SrcField, c.DstField = ConstraintFunctional, rel, src, dst
			return c
		}
	case "at_most":
		onFields, rest2 := extractOnText(rest)
		arrowPart, maxPart, ok := strings.Cut(rest2, "<=")
		if ok {
			if rel, src, dst, ok2 := parseFieldArrowText(strings.TrimSpace(arrowPart)); ok2 {
				if max, err := strconv.Atoi(strings.TrimSpace(maxPart)); err == nil {
					c.Kind, c.Relation, c.SrcField, c.DstField = ConstraintAtMost, rel, src, dst
					c.Max, c.OnFields = max, onFields
					return c
				}
			}
		}
	case "key":
		b := strings.TrimSpace(rest)
		open := strings.Index(b, "(")
		if open >= 0 && strings.HasSuffix(b, ")") {
			rel := strings.TrimSpace(b[:open])
			keyFields := splitTopLevelText(b[open+1:len(b)-1], ',')
			for i := range keyFields {
				keyFields[i] = strings.TrimSpace(keyFields[i])
			}
			c.Kind, c.Relation, c.KeyFields = ConstraintKey, rel, keyFields
			return c
		}
	case "symmetric":
		b := strings.TrimSpace(rest)
		onFields, b := extractOnText(b)
		whereField, whereVals, b := extractWhereText(b)
		rel := strings.TrimSpace(b)
		if rel != "" {
			if whereField != "" {
				c.Kind, c.Relation, c.WhereField, c.WhereInValues, c.OnFields = ConstraintSymmetricWhereIn, rel, whereField, whereVals, onFields
				return c
			}
			c.Kind, c.Relation, c.OnFields = ConstraintSymmetric, rel, onFields
			return c
		}
	case "transitive":
		b := strings.TrimSpace(rest)
		onFields, b := extractOnText(b)
		if rel := strings.TrimSpace(b); rel != "" {
			c.Kind, c.Relation, c.OnFields = ConstraintTransitive, rel, onFields
			return c
		}
	case "typing":
		b := strings.TrimSpace(rest)
		if rel, rule, ok := strings.Cut(b, ":"); ok {
			c.Kind, c.Relation, c.RuleName = ConstraintTyping, strings.TrimSpace(rel), strings.TrimSpace(rule)
			return c
		}
	}
	c.Kind = ConstraintUnknown
	return c
}

func parseFieldArrowText(text string) (rel, src, dst string, ok bool) {
	lhs, rhs, ok := strings.Cut(text, "->")
	if !ok {
		return "", "", "", false
	}
	lrel, lfield, ok := strings.Cut(strings.TrimSpace(lhs), ".")
	if !ok {
		return "", "", "", false
	}
	_, rfield, ok := strings.Cut(strings.TrimSpace(rhs), ".")
	if !ok {
		return "", "", "", false
	}
	return strings.TrimSpace(lrel), strings.TrimSpace(lfield), strings.TrimSpace(rfield), true
}

func extractOnText(body string) ([]string, string) {
	idx := strings.Index(body, " on (")
	if idx < 0 {
		return nil, body
	}
	rest := body[idx+len(" on ("):]
	close := strings.Index(rest, ")")
	if close < 0 {
		return nil, body
	}
	fields := splitTopLevelText(rest[:close], ',')
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, strings.TrimSpace(body[:idx])
}

func extractWhereText(body string) (field string, values []string, rest string) {
	idx := strings.Index(body, " where ")
	if idx < 0 {
		return "", nil, body
	}
	head := body[:idx]
	tail := strings.TrimSpace(body[idx+len(" where "):])
	inIdx := strings.Index(tail, " in ")
	if inIdx < 0 {
		return "", nil, body
	}
	field = strings.TrimSpace(tail[:inIdx])
	braceBody := strings.TrimSpace(tail[inIdx+len(" in "):])
	braceBody = strings.TrimPrefix(braceBody, "{")
	braceBody = strings.TrimSuffix(braceBody, "}")
	for _, v := range splitTopLevelText(braceBody, ',') {
		values = append(values, strings.TrimSpace(v))
	}
	return field, values, head
}

func splitTopLevelText(s string, sep byte) []string {
	var out []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}
