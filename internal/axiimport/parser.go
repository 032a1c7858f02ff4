package axiimport

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError carries the line number of a malformed `.axi` document,
// matching the taxonomy of §7.1 ("Parse errors: location + human message").
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("axi: line %d: %s", e.Line, e.Message)
}

type rawLine struct {
	indent int
	text   string
	lineNo int
}

// Parse parses canonical `.axi` module text per the grammar sketch in §6.
func Parse(source string) (*Module, error) {
	lines := splitLines(source)
	if len(lines) == 0 {
		return nil, &ParseError{Line: 0, Message: "empty module"}
	}
	if lines[0].indent != 0 || !strings.HasPrefix(lines[0].text, "module ") {
		return nil, &ParseError{Line: lines[0].lineNo, Message: "expected 'module Name'"}
	}
	mod := &Module{Name: strings.TrimSpace(strings.TrimPrefix(lines[0].text, "module "))}
	if mod.Name == "" {
		return nil, &ParseError{Line: lines[0].lineNo, Message: "module name missing"}
	}

	i := 1
	for i < len(lines) {
		ln := lines[i]
		if ln.indent != 0 {
			return nil, &ParseError{Line: ln.lineNo, Message: "unexpected indentation at top level"}
		}
		body, next := collectBlock(lines, i+1)
		switch {
		case strings.HasPrefix(ln.text, "schema ") && strings.HasSuffix(ln.text, ":"):
			name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(ln.text, "schema "), ":"))
			s, err := parseSchema(name, body)
			if err != nil {
				return nil, err
			}
			mod.Schemas = append(mod.Schemas, s)
		case strings.HasPrefix(ln.text, "theory ") && strings.HasSuffix(ln.text, ":"):
			rest := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(ln.text, "theory "), ":"))
			parts := strings.SplitN(rest, " on ", 2)
			if len(parts) != 2 {
				return nil, &ParseError{Line: ln.lineNo, Message: "theory header must be 'theory T on S:'"}
			}
			th, err := parseTheory(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), body)
			if err != nil {
				return nil, err
			}
			mod.Theories = append(mod.Theories, th)
		case strings.HasPrefix(ln.text, "instance ") && strings.HasSuffix(ln.text, ":"):
			rest := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(ln.text, "instance "), ":"))
			parts := strings.SplitN(rest, " of ", 2)
			if len(parts) != 2 {
				return nil, &ParseError{Line: ln.lineNo, Message: "instance header must be 'instance I of S:'"}
			}
			inst, err := parseInstance(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), body)
			if err != nil {
				return nil, err
			}
			mod.Instances = append(mod.Instances, inst)
		default:
			return nil, &ParseError{Line: ln.lineNo, Message: "unrecognized top-level block: " + ln.text}
		}
		i = next
	}
	return mod, nil
}

// splitLines tokenizes source into indentation-tagged, comment-and-blank
// stripped lines. Indentation is measured in leading spaces (tabs count as
// one column, matching the teacher's lexer treatment of whitespace).
func splitLines(source string) []rawLine {
	var out []rawLine
	for i, raw := range strings.Split(source, "\n") {
		trimmedRight := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimLeft(trimmedRight, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(trimmedRight) - len(trimmed)
		out = append(out, rawLine{indent: indent, text: trimmed, lineNo: i + 1})
	}
	return out
}

// collectBlock returns every line more indented than the block header
// starting at index start, plus the index of the first line that returns
// to the header's indentation or less.
func collectBlock(lines []rawLine, start int) ([]rawLine, int) {
	if start >= len(lines) {
		return nil, start
	}
	headerIndent := lines[start-1].indent
	end := start
	for end < len(lines) && lines[end].indent > headerIndent {
		end++
	}
	return lines[start:end], end
}

func parseSchema(name string, body []rawLine) (*Schema, error) {
	s := &Schema{Name: name}
	for _, ln := range body {
		switch {
		case strings.HasPrefix(ln.text, "object "):
			s.Objects = append(s.Objects, strings.TrimSpace(strings.TrimPrefix(ln.text, "object ")))
		case strings.HasPrefix(ln.text, "sub "):
			rest := strings.TrimSpace(strings.TrimPrefix(ln.text, "sub "))
			parts := strings.SplitN(rest, "<", 2)
			if len(parts) != 2 {
				return nil, &ParseError{Line: ln.lineNo, Message: "expected 'sub Sub < Super'"}
			}
			s.Subtypes = append(s.Subtypes, SubtypeDecl{Sub: strings.TrimSpace(parts[0]), Super: strings.TrimSpace(parts[1])})
		case strings.HasPrefix(ln.text, "relation "):
			rd, err := parseRelationDecl(strings.TrimSpace(strings.TrimPrefix(ln.text, "relation ")), ln.lineNo)
			if err != nil {
				return nil, err
			}
			s.Relations = append(s.Relations, rd)
		default:
			return nil, &ParseError{Line: ln.lineNo, Message: "unrecognized schema statement: " + ln.text}
		}
	}
	return s, nil
}

func parseRelationDecl(text string, lineNo int) (RelationDecl, error) {
	open := strings.Index(text, "(")
	if open < 0 || !strings.HasSuffix(text, ")") {
		return RelationDecl{}, &ParseError{Line: lineNo, Message: "expected 'R(f1: T1, ...)'"}
	}
	name := strings.TrimSpace(text[:open])
	inner := text[open+1 : len(text)-1]
	rd := RelationDecl{Name: name}
	if strings.TrimSpace(inner) == "" {
		return rd, nil
	}
	for _, field := range splitTopLevel(inner, ',') {
		parts := strings.SplitN(field, ":", 2)
		if len(parts) != 2 {
			return RelationDecl{}, &ParseError{Line: lineNo, Message: "expected 'name: Type' field"}
		}
		rd.Fields = append(rd.Fields, FieldDecl{Name: strings.TrimSpace(parts[0]), Type: strings.TrimSpace(parts[1])})
	}
	return rd, nil
}

func parseTheory(name, onSchema string, body []rawLine) (*Theory, error) {
	th := &Theory{Name: name, OnSchema: onSchema}
	i := 0
	for i < len(body) {
		ln := body[i]
		switch {
		case strings.HasPrefix(ln.text, "constraint "):
			rest := strings.TrimSpace(strings.TrimPrefix(ln.text, "constraint "))
			if strings.HasSuffix(rest, ":") {
				// Named block: opaque body is every further-indented line
				// that follows, joined with newlines (§6, §4.F "unknown").
				blockBody, next := collectBlock(body, i+1)
				var text []string
				for _, b := range blockBody {
					text = append(text, b.text)
				}
				th.Constraints = append(th.Constraints, ConstraintDecl{
					Kind: "named_block",
					Name: strings.TrimSpace(strings.TrimSuffix(rest, ":")),
					Text: strings.Join(text, "\n"),
				})
				i = next
				continue
			}
			cd, err := parseConstraint(rest, ln.lineNo)
			if err != nil {
				return nil, err
			}
			th.Constraints = append(th.Constraints, cd)
		case strings.HasPrefix(ln.text, "rewrite ") && strings.HasSuffix(ln.text, ":"):
			rname := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(ln.text, "rewrite "), ":"))
			blockBody, next := collectBlock(body, i+1)
			rw, err := parseRewrite(rname, blockBody)
			if err != nil {
				return nil, err
			}
			th.Rewrites = append(th.Rewrites, *rw)
			i = next
			continue
		default:
			return nil, &ParseError{Line: ln.lineNo, Message: "unrecognized theory statement: " + ln.text}
		}
		i++
	}
	return th, nil
}

func parseConstraint(rest string, lineNo int) (ConstraintDecl, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ConstraintDecl{}, &ParseError{Line: lineNo, Message: "empty constraint"}
	}
	kind := fields[0]
	switch kind {
	case "functional":
		rel, src, dst, err := parseFieldArrow(strings.Join(fields[1:], " "), lineNo)
		if err != nil {
			return ConstraintDecl{}, err
		}
		return ConstraintDecl{Kind: "functional", Relation: rel, SrcField: src, DstField: dst}, nil
	case "at_most":
		body := strings.Join(fields[1:], " ")
		onFields, body := extractOn(body)
		arrowPart, maxPart, ok := strings.Cut(body, "<=")
		if !ok {
			return ConstraintDecl{}, &ParseError{Line: lineNo, Message: "at_most requires '<= N'"}
		}
		rel, src, dst, err := parseFieldArrow(strings.TrimSpace(arrowPart), lineNo)
		if err != nil {
			return ConstraintDecl{}, err
		}
		max, err := strconv.Atoi(strings.TrimSpace(maxPart))
		if err != nil {
			return ConstraintDecl{}, &ParseError{Line: lineNo, Message: "at_most max must be an integer"}
		}
		return ConstraintDecl{Kind: "at_most", Relation: rel, SrcField: src, DstField: dst, Max: max, OnFields: onFields}, nil
	case "key":
		body := strings.TrimSpace(strings.Join(fields[1:], " "))
		open := strings.Index(body, "(")
		if open < 0 || !strings.HasSuffix(body, ")") {
			return ConstraintDecl{}, &ParseError{Line: lineNo, Message: "key requires 'R(f1, ...)'"}
		}
		rel := strings.TrimSpace(body[:open])
		keyFields := splitTopLevel(body[open+1:len(body)-1], ',')
		for i := range keyFields {
			keyFields[i] = strings.TrimSpace(keyFields[i])
		}
		return ConstraintDecl{Kind: "key", Relation: rel, KeyFields: keyFields}, nil
	case "symmetric":
		body := strings.TrimSpace(strings.Join(fields[1:], " "))
		onFields, body := extractOn(body)
		whereField, whereVals, body := extractWhere(body)
		rel := strings.TrimSpace(body)
		if whereField != "" {
			return ConstraintDecl{Kind: "symmetric_where_in", Relation: rel, WhereField: whereField, WhereInValues: whereVals, OnFields: onFields}, nil
		}
		return ConstraintDecl{Kind: "symmetric", Relation: rel, OnFields: onFields}, nil
	case "transitive":
		body := strings.TrimSpace(strings.Join(fields[1:], " "))
		onFields, body := extractOn(body)
		return ConstraintDecl{Kind: "transitive", Relation: strings.TrimSpace(body), OnFields: onFields}, nil
	case "typing":
		body := strings.TrimSpace(strings.Join(fields[1:], " "))
		rel, rule, ok := strings.Cut(body, ":")
		if !ok {
			return ConstraintDecl{}, &ParseError{Line: lineNo, Message: "typing requires 'R: rule_name'"}
		}
		return ConstraintDecl{Kind: "typing", Relation: strings.TrimSpace(rel), RuleName: strings.TrimSpace(rule)}, nil
	default:
		return ConstraintDecl{}, &ParseError{Line: lineNo, Message: "unknown constraint kind: " + kind}
	}
}

// parseFieldArrow parses "R.a -> R.b" into (relation, srcField, dstField).
func parseFieldArrow(text string, lineNo int) (rel, src, dst string, err error) {
	lhs, rhs, ok := strings.Cut(text, "->")
	if !ok {
		return "", "", "", &ParseError{Line: lineNo, Message: "expected 'R.field -> R.field'"}
	}
	lrel, lfield, ok := strings.Cut(strings.TrimSpace(lhs), ".")
	if !ok {
		return "", "", "", &ParseError{Line: lineNo, Message: "expected 'R.field'"}
	}
	_, rfield, ok := strings.Cut(strings.TrimSpace(rhs), ".")
	if !ok {
		return "", "", "", &ParseError{Line: lineNo, Message: "expected 'R.field'"}
	}
	return strings.TrimSpace(lrel), strings.TrimSpace(lfield), strings.TrimSpace(rfield), nil
}

// extractOn pulls a trailing "on (c1, c2)" clause out of body, returning
// the context fields and the remaining text.
func extractOn(body string) ([]string, string) {
	idx := strings.Index(body, " on (")
	if idx < 0 {
		return nil, body
	}
	rest := body[idx+len(" on ("):]
	close := strings.Index(rest, ")")
	if close < 0 {
		return nil, body
	}
	fields := splitTopLevel(rest[:close], ',')
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, strings.TrimSpace(body[:idx])
}

// extractWhere pulls a "where f in {v1, v2}" clause out of body.
func extractWhere(body string) (field string, values []string, rest string) {
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
	for _, v := range splitTopLevel(braceBody, ',') {
		values = append(values, strings.TrimSpace(v))
	}
	return field, values, head
}

func parseRewrite(name string, body []rawLine) (*RewriteDecl, error) {
	rw := &RewriteDecl{Name: name}
	for _, ln := range body {
		switch {
		case strings.HasPrefix(ln.text, "orientation:"):
			rw.Orientation = strings.TrimSpace(strings.TrimPrefix(ln.text, "orientation:"))
		case strings.HasPrefix(ln.text, "vars:"):
			rest := strings.TrimSpace(strings.TrimPrefix(ln.text, "vars:"))
			for _, v := range splitTopLevel(rest, ',') {
				vd, err := parseVarDecl(strings.TrimSpace(v), ln.lineNo)
				if err != nil {
					return nil, err
				}
				rw.Vars = append(rw.Vars, vd)
			}
		case strings.HasPrefix(ln.text, "lhs:"):
			rest := strings.TrimPrefix(ln.text, "lhs:")
			lhsPart, rhsPart, ok := strings.Cut(rest, ";")
			rw.LHS = strings.TrimSpace(lhsPart)
			if ok {
				rw.RHS = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rhsPart), "rhs:"))
			}
		default:
			return nil, &ParseError{Line: ln.lineNo, Message: "unrecognized rewrite statement: " + ln.text}
		}
	}
	if rw.Orientation == "" {
		rw.Orientation = "forward"
	}
	return rw, nil
}

func parseVarDecl(text string, lineNo int) (VarDecl, error) {
	name, typ, ok := strings.Cut(text, ":")
	if !ok {
		return VarDecl{}, &ParseError{Line: lineNo, Message: "expected 'name: Type' var decl"}
	}
	name = strings.TrimSpace(name)
	typ = strings.TrimSpace(typ)
	if strings.HasPrefix(typ, "Path(") && strings.HasSuffix(typ, ")") {
		inner := typ[len("Path(") : len(typ)-1]
		parts := splitTopLevel(inner, ',')
		if len(parts) != 2 {
			return VarDecl{}, &ParseError{Line: lineNo, Message: "Path(x,y) requires two endpoints"}
		}
		return VarDecl{Name: name, Type: "Path", IsPath: true, From: strings.TrimSpace(parts[0]), To: strings.TrimSpace(parts[1])}, nil
	}
	return VarDecl{Name: name, Type: typ}, nil
}

func parseInstance(name, ofSchema string, body []rawLine) (*Instance, error) {
	inst := &Instance{Name: name, OfSchema: ofSchema, Objects: map[string][]string{}, Facts: map[string][]FactLiteral{}}
	for _, ln := range body {
		lhs, rhs, ok := strings.Cut(ln.text, "=")
		if !ok {
			return nil, &ParseError{Line: ln.lineNo, Message: "expected 'Name = { ... }'"}
		}
		lhs = strings.TrimSpace(lhs)
		rhs = strings.TrimSpace(rhs)
		if !strings.HasPrefix(rhs, "{") || !strings.HasSuffix(rhs, "}") {
			return nil, &ParseError{Line: ln.lineNo, Message: "expected '{ ... }' braces"}
		}
		inner := rhs[1 : len(rhs)-1]
		items := splitTopLevel(inner, ',')
		isFactList := false
		for _, it := range items {
			if strings.HasPrefix(strings.TrimSpace(it), "(") {
				isFactList = true
			}
		}
		if isFactList {
			for _, it := range items {
				it = strings.TrimSpace(it)
				if it == "" {
					continue
				}
				fl, err := parseFactLiteral(it, ln.lineNo)
				if err != nil {
					return nil, err
				}
				inst.Facts[lhs] = append(inst.Facts[lhs], fl)
			}
		} else {
			for _, it := range items {
				it = strings.TrimSpace(it)
				if it == "" {
					continue
				}
				inst.Objects[lhs] = append(inst.Objects[lhs], it)
			}
		}
	}
	return inst, nil
}

func parseFactLiteral(text string, lineNo int) (FactLiteral, error) {
	if !strings.HasPrefix(text, "(") || !strings.HasSuffix(text, ")") {
		return FactLiteral{}, &ParseError{Line: lineNo, Message: "expected '(field=value, ...)'"}
	}
	inner := text[1 : len(text)-1]
	fl := FactLiteral{Fields: map[string]string{}}
	for _, part := range splitTopLevel(inner, ',') {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return FactLiteral{}, &ParseError{Line: lineNo, Message: "expected 'field=value'"}
		}
		fl.Fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return fl, nil
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// (), {}, or "" — used for comma-separated lists that may themselves
// contain parenthesized or quoted sub-expressions.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	inQuote := false
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuote = !inQuote
		case inQuote:
			// inside a quoted literal, ignore structural characters
		case c == '(' || c == '{':
			depth++
		case c == ')' || c == '}':
			depth--
		case c == sep && depth == 0:
			out = append(out, s[last:i])
			last = i + 1
		}
	}
	out = append(out, s[last:])
	return out
}
