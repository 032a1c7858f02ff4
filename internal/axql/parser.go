package axql

import (
	"fmt"
	"strings"
)

// Parser turns AxQL source text into a Query IR (§4.H). It recognizes all
// of §4.H's atom forms: Type, Path/RPQ, Attr, Fact, Has, Attrs, the
// approximate-match sugars (contains/fts/fuzzy), and Shape sugar. Shape is
// desugared at parse time into a conjunction of Type/Has/Attr atoms, per
// its documented "purely surface-level sugar" behavior (see DESIGN.md).
type parser struct {
	lex  *lexer
	tok  token
	src  string
	peek *token
}

// Parse parses AxQL source text into a Query.
func Parse(src string) (*Query, error) {
	p := &parser{lex: newLexer(src), src: src}
	if err := p.advance(); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	q.SourceText = src
	return q, nil
}

func (p *parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) peekTok() (token, error) {
	if p.peek == nil {
		t, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.peek = &t
	}
	return *p.peek, nil
}

func (p *parser) atKeyword(kw string) bool {
	return p.tok.kind == tokIdent && p.tok.text == kw
}

func (p *parser) atPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return &ParseError{Pos: p.tok.pos, Message: fmt.Sprintf("expected %q, found %q", s, p.tok.text)}
	}
	return p.advance()
}

func (p *parser) expectIdent() (string, error) {
	if p.tok.kind != tokIdent {
		return "", &ParseError{Pos: p.tok.pos, Message: "expected identifier, found " + p.tok.text}
	}
	s := p.tok.text
	return s, p.advance()
}

func (p *parser) parseQuery() (*Query, error) {
	q := &Query{}

	if p.atKeyword("select") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.tok.kind == tokIdent && p.tok.text != "where" {
			q.SelectVars = append(q.SelectVars, p.tok.text)
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
	}

	if !p.atKeyword("where") {
		return nil, &ParseError{Pos: p.tok.pos, Message: "expected 'where'"}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	d, err := p.parseDisjunct()
	if err != nil {
		return nil, err
	}
	q.Disjuncts = append(q.Disjuncts, *d)
	for p.atKeyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		d, err := p.parseDisjunct()
		if err != nil {
			return nil, err
		}
		q.Disjuncts = append(q.Disjuncts, *d)
	}

	for {
		switch {
		case p.atKeyword("in"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			ctxs, err := p.parseContexts()
			if err != nil {
				return nil, err
			}
			q.Contexts = ctxs
		case p.atKeyword("max_hops"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.expectNatInt()
			if err != nil {
				return nil, err
			}
			q.MaxHops = &n
		case p.atKeyword("min_confidence"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			f, err := p.expectFloat()
			if err != nil {
				return nil, err
			}
			if f < 0 || f > 1 {
				return nil, &ParseError{Pos: p.tok.pos, Message: "min_confidence must be in [0,1]"}
			}
			q.MinConfidence = &f
		case p.atKeyword("limit"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.expectNatInt()
			if err != nil {
				return nil, err
			}
			if n <= 0 {
				return nil, &ParseError{Pos: p.tok.pos, Message: "limit must be > 0"}
			}
			q.Limit = &n
		case p.tok.kind == tokEOF:
			return q, nil
		default:
			return nil, &ParseError{Pos: p.tok.pos, Message: "unexpected trailing token " + p.tok.text}
		}
	}
}

func (p *parser) parseContexts() ([]Term, error) {
	if p.atPunct("{") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var out []Term
		for {
			t, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			out = append(out, t)
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return out, nil
	}
	t, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return []Term{t}, nil
}

func (p *parser) expectNatInt() (int, error) {
	if p.tok.kind != tokNat {
		return 0, &ParseError{Pos: p.tok.pos, Message: "expected integer"}
	}
	n, err := parseNat(p.tok.text)
	if err != nil {
		return 0, &ParseError{Pos: p.tok.pos, Message: "malformed integer: " + p.tok.text}
	}
	return int(n), p.advance()
}

func (p *parser) expectFloat() (float64, error) {
	if p.tok.kind != tokNat {
		return 0, &ParseError{Pos: p.tok.pos, Message: "expected number"}
	}
	text := p.tok.text
	if err := p.advance(); err != nil {
		return 0, err
	}
	if p.atPunct(".") {
		if err := p.advance(); err != nil {
			return 0, err
		}
		if p.tok.kind != tokNat {
			return 0, &ParseError{Pos: p.tok.pos, Message: "expected fractional digits"}
		}
		text = text + "." + p.tok.text
		if err := p.advance(); err != nil {
			return 0, err
		}
	}
	var f float64
	if _, err := fmt.Sscanf(text, "%g", &f); err != nil {
		return 0, &ParseError{Pos: p.tok.pos, Message: "malformed number: " + text}
	}
	return f, nil
}

func (p *parser) parseDisjunct() (*Disjunct, error) {
	d := &Disjunct{}
	atoms, err := p.parseAtoms()
	if err != nil {
		return nil, err
	}
	d.Atoms = append(d.Atoms, atoms...)
	for p.atPunct(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		atoms, err := p.parseAtoms()
		if err != nil {
			return nil, err
		}
		d.Atoms = append(d.Atoms, atoms...)
	}
	return d, nil
}

func (p *parser) parseTerm() (Term, error) {
	switch {
	case p.tok.kind == tokNat:
		n, err := parseNat(p.tok.text)
		if err != nil {
			return Term{}, &ParseError{Pos: p.tok.pos, Message: "malformed natural number: " + p.tok.text}
		}
		if err := p.advance(); err != nil {
			return Term{}, err
		}
		return Term{Kind: TermNat, Nat: n}, nil
	case p.tok.kind == tokIdent && p.tok.text == "_":
		if err := p.advance(); err != nil {
			return Term{}, err
		}
		return Term{Kind: TermWildcard}, nil
	case p.tok.kind == tokIdent && p.tok.text == "name":
		if err := p.advance(); err != nil {
			return Term{}, err
		}
		if err := p.expectPunct("("); err != nil {
			return Term{}, err
		}
		if p.tok.kind != tokString {
			return Term{}, &ParseError{Pos: p.tok.pos, Message: "expected string literal in name(...)"}
		}
		if p.tok.text == "" {
			return Term{}, &ParseError{Pos: p.tok.pos, Message: "empty string literal not allowed"}
		}
		name := p.tok.text
		if err := p.advance(); err != nil {
			return Term{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Term{}, err
		}
		return Term{Kind: TermName, Name: name}, nil
	case p.tok.kind == tokIdent && p.tok.text == "entity":
		if err := p.advance(); err != nil {
			return Term{}, err
		}
		if err := p.expectPunct("("); err != nil {
			return Term{}, err
		}
		k, err := p.expectIdent()
		if err != nil {
			return Term{}, err
		}
		if err := p.expectPunct(","); err != nil {
			return Term{}, err
		}
		if p.tok.kind != tokString {
			return Term{}, &ParseError{Pos: p.tok.pos, Message: "expected string literal in entity(k, \"v\")"}
		}
		v := p.tok.text
		if err := p.advance(); err != nil {
			return Term{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Term{}, err
		}
		return Term{Kind: TermName, Name: k + "=" + v}, nil
	case p.tok.kind == tokIdent:
		v := p.tok.text
		return Term{Kind: TermVar, Var: v}, p.advance()
	}
	return Term{}, &ParseError{Pos: p.tok.pos, Message: "expected a term, found " + p.tok.text}
}

// parseAtoms dispatches on lookahead: a leading keyword identifies attr/has/
// attrs/fact/contains/fts/fuzzy forms; otherwise a Term is parsed and the
// following token (":" or "-" or "has" or "{") identifies Type/Path/Has/
// Shape. Every form returns exactly one atom except Shape, which desugars
// into several (§4.H: "purely surface-level sugar").
func (p *parser) parseAtoms() ([]Atom, error) {
	start := p.tok.pos

	if p.tok.kind == tokIdent {
		switch p.tok.text {
		case "attr":
			a, err := p.parseAttrAtom(start)
			return wrap(a, err)
		case "attrs":
			a, err := p.parseAttrsAtom(start)
			return wrap(a, err)
		case "has":
			a, err := p.parseHasFnAtom(start)
			return wrap(a, err)
		case "contains":
			a, err := p.parseMatchAtom(start, AtomContains)
			return wrap(a, err)
		case "fts":
			a, err := p.parseMatchAtom(start, AtomFTS)
			return wrap(a, err)
		case "fuzzy":
			a, err := p.parseMatchAtom(start, AtomFuzzy)
			return wrap(a, err)
		}
	}

	// Fact atom: [Var "="] Ident "(" field=Term, ... ")"
	if p.tok.kind == tokIdent {
		next, err := p.peekTok()
		if err != nil {
			return nil, err
		}
		if next.kind == tokPunct && next.text == "=" {
			factVar := p.tok.text
			if err := p.advance(); err != nil { // consume ident
				return nil, err
			}
			if err := p.advance(); err != nil { // consume '='
				return nil, err
			}
			rel, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			a, err := p.parseFactAtom(start, factVar, rel)
			return wrap(a, err)
		}
		if next.kind == tokPunct && next.text == "(" && p.tok.text != "name" && p.tok.text != "entity" {
			rel := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			a, err := p.parseFactAtom(start, "", rel)
			return wrap(a, err)
		}
	}

	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	switch {
	case p.atPunct(":"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		typeName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return []Atom{{Kind: AtomType, Term: term, TypeName: typeName, SourceText: p.span(start)}}, nil
	case p.atPunct("-"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		path, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("->"); err != nil {
			return nil, err
		}
		to, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return []Atom{{Kind: AtomPath, From: term, To: to, Path: path, SourceText: p.span(start)}}, nil
	case p.atKeyword("has"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return []Atom{{Kind: AtomHas, Term: term, Rels: []string{rel}, SourceText: p.span(start)}}, nil
	case p.atPunct("{"):
		return p.parseShapeAtoms(start, term)
	}
	return nil, &ParseError{Pos: p.tok.pos, Message: "unrecognized atom continuation: " + p.tok.text}
}

func wrap(a *Atom, err error) ([]Atom, error) {
	if err != nil {
		return nil, err
	}
	return []Atom{*a}, nil
}

// parseMatchAtom parses the approximate attribute-match sugars:
// contains(Term, "key", "needle"), fts(Term, "key", "query"), and
// fuzzy(Term, "key", "needle" [, dist]). None of these are part of the
// certified query core (§4.H) — they exist for discovery/REPL use.
func (p *parser) parseMatchAtom(start int, kind AtomKind) (*Atom, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if p.tok.kind != tokString {
		return nil, &ParseError{Pos: p.tok.pos, Message: "expected string key"}
	}
	key := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if p.tok.kind != tokString {
		return nil, &ParseError{Pos: p.tok.pos, Message: "expected string needle"}
	}
	needle := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	dist := 2 // default max edit distance when fuzzy omits one
	if kind == AtomFuzzy && p.atPunct(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.expectNatInt()
		if err != nil {
			return nil, err
		}
		dist = n
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Atom{Kind: kind, Term: term, AttrKey: key, AttrValue: needle, FuzzyDist: dist, SourceText: p.span(start)}, nil
}

// parseShapeAtoms desugars `Term { rel_0, rel_1, name="v", is TypeName }`
// into a conjunction of AtomHas, AtomAttr, and AtomType atoms (§4.H Shape
// sugar — "purely surface-level sugar").
func (p *parser) parseShapeAtoms(start int, term Term) ([]Atom, error) {
	if err := p.advance(); err != nil { // consume '{'
		return nil, err
	}
	var atoms []Atom
	for !p.atPunct("}") {
		if p.atKeyword("is") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			typeName, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, Atom{Kind: AtomType, Term: term, TypeName: typeName, SourceText: p.span(start)})
		} else {
			ident, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.atPunct("=") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.tok.kind != tokString {
					return nil, &ParseError{Pos: p.tok.pos, Message: "expected string value in shape attribute"}
				}
				val := p.tok.text
				if err := p.advance(); err != nil {
					return nil, err
				}
				atoms = append(atoms, Atom{Kind: AtomAttr, Term: term, AttrKey: ident, AttrValue: val, SourceText: p.span(start)})
			} else {
				atoms = append(atoms, Atom{Kind: AtomHas, Term: term, Rels: []string{ident}, SourceText: p.span(start)})
			}
		}
		if p.atPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	if len(atoms) == 0 {
		return nil, &ParseError{Pos: start, Message: "empty shape {}"}
	}
	return atoms, nil
}

func (p *parser) span(start int) string {
	if start >= len(p.src) {
		return ""
	}
	end := p.tok.pos
	if end > len(p.src) || end <= start {
		end = len(p.src)
	}
	return strings.TrimSpace(p.src[start:end])
}

func (p *parser) parseAttrAtom(start int) (*Atom, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if p.tok.kind != tokString {
		return nil, &ParseError{Pos: p.tok.pos, Message: "expected string key in attr(...)"}
	}
	key := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if p.tok.kind != tokString {
		return nil, &ParseError{Pos: p.tok.pos, Message: "expected string value in attr(...)"}
	}
	val := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Atom{Kind: AtomAttr, Term: term, AttrKey: key, AttrValue: val, SourceText: p.span(start)}, nil
}

func (p *parser) parseAttrsAtom(start int) (*Atom, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	attrs := map[string]string{}
	for p.atPunct(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		k, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		if p.tok.kind != tokString {
			return nil, &ParseError{Pos: p.tok.pos, Message: "expected string value in attrs(...)"}
		}
		attrs[k] = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Atom{Kind: AtomAttrs, Term: term, Attrs: attrs, SourceText: p.span(start)}, nil
}

func (p *parser) parseHasFnAtom(start int) (*Atom, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	var rels []string
	for p.atPunct(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Atom{Kind: AtomHas, Term: term, Rels: rels, SourceText: p.span(start)}, nil
}

func (p *parser) parseFactAtom(start int, factVar, rel string) (*Atom, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	fields := map[string]Term{}
	for {
		if p.atPunct(")") {
			break
		}
		field, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		fields[field] = val
		if p.atPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Atom{Kind: AtomFact, FactVar: factVar, Relation: rel, FactFields: fields, SourceText: p.span(start)}, nil
}

// parsePathExpr parses the RPQ grammar: alternation of concatenations of
// postfix-quantified relation atoms, e.g. "(knows|likes)+/owns?".
func (p *parser) parsePathExpr() (*PathExpr, error) {
	return p.parseAlt()
}

func (p *parser) parseAlt() (*PathExpr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.atPunct("|") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &PathExpr{Kind: PathAlt, Children: []*PathExpr{left, right}}
	}
	return left, nil
}

func (p *parser) parseConcat() (*PathExpr, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for p.atPunct("/") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		left = &PathExpr{Kind: PathConcat, Children: []*PathExpr{left, right}}
	}
	return left, nil
}

func (p *parser) parsePostfix() (*PathExpr, error) {
	base, err := p.parsePathAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("*"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			base = &PathExpr{Kind: PathStar, Children: []*PathExpr{base}}
		case p.atPunct("+"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			base = &PathExpr{Kind: PathPlus, Children: []*PathExpr{base}}
		case p.atPunct("?"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			base = &PathExpr{Kind: PathOpt, Children: []*PathExpr{base}}
		default:
			return base, nil
		}
	}
}

func (p *parser) parsePathAtom() (*PathExpr, error) {
	if p.atPunct("(") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseAlt()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if p.tok.kind == tokIdent && p.tok.text == "eps" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &PathExpr{Kind: PathEpsilon}, nil
	}
	if p.tok.kind == tokIdent {
		rel := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &PathExpr{Kind: PathRel, Rel: rel}, nil
	}
	return nil, &ParseError{Pos: p.tok.pos, Message: "expected a path expression, found " + p.tok.text}
}
