package axql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/axiograph/axiograph/internal/digest"
)

// Digest computes a stable content digest of the normalized IR (§4.L),
// used as half of the prepared-query cache key. Two syntactically
// different but semantically identical queries (e.g. differing only in
// whitespace) normalize to the same digest because Parse already discards
// whitespace from the IR.
func Digest(q *Query) string {
	var b strings.Builder
	vars := append([]string{}, q.SelectVars...)
	sort.Strings(vars)
	fmt.Fprintf(&b, "select:%s\n", strings.Join(vars, ","))
	for _, d := range q.Disjuncts {
		b.WriteString("or:\n")
		for _, a := range d.Atoms {
			writeAtom(&b, a)
		}
	}
	if q.MaxHops != nil {
		fmt.Fprintf(&b, "max_hops:%d\n", *q.MaxHops)
	}
	if q.MinConfidence != nil {
		fmt.Fprintf(&b, "min_confidence:%g\n", *q.MinConfidence)
	}
	if q.Limit != nil {
		fmt.Fprintf(&b, "limit:%d\n", *q.Limit)
	}
	for _, c := range q.Contexts {
		fmt.Fprintf(&b, "ctx:%s\n", writeTerm(c))
	}
	return digest.OfString(b.String())
}

func writeTerm(t Term) string {
	switch t.Kind {
	case TermVar:
		return "var:" + t.Var
	case TermNat:
		return fmt.Sprintf("nat:%d", t.Nat)
	case TermWildcard:
		return "_"
	case TermName:
		return "name:" + t.Name
	}
	return "?"
}

func writePathExpr(p *PathExpr) string {
	if p == nil {
		return ""
	}
	switch p.Kind {
	case PathEpsilon:
		return "eps"
	case PathRel:
		return p.Rel
	case PathConcat:
		return writePathExpr(p.Children[0]) + "/" + writePathExpr(p.Children[1])
	case PathAlt:
		return "(" + writePathExpr(p.Children[0]) + "|" + writePathExpr(p.Children[1]) + ")"
	case PathStar:
		return writePathExpr(p.Children[0]) + "*"
	case PathPlus:
		return writePathExpr(p.Children[0]) + "+"
	case PathOpt:
		return writePathExpr(p.Children[0]) + "?"
	}
	return ""
}

func writeAtom(b *strings.Builder, a Atom) {
	switch a.Kind {
	case AtomType:
		fmt.Fprintf(b, "type:%s:%s\n", writeTerm(a.Term), a.TypeName)
	case AtomPath:
		fmt.Fprintf(b, "path:%s:%s:%s\n", writeTerm(a.From), writePathExpr(a.Path), writeTerm(a.To))
	case AtomAttr:
		fmt.Fprintf(b, "attr:%s:%s:%s\n", writeTerm(a.Term), a.AttrKey, a.AttrValue)
	case AtomFact:
		keys := make([]string, 0, len(a.FactFields))
		for k := range a.FactFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(b, "fact:%s:%s:", a.FactVar, a.Relation)
		for _, k := range keys {
			fmt.Fprintf(b, "%s=%s,", k, writeTerm(a.FactFields[k]))
		}
		b.WriteString("\n")
	case AtomHas:
		rels := append([]string{}, a.Rels...)
		sort.Strings(rels)
		fmt.Fprintf(b, "has:%s:%s\n", writeTerm(a.Term), strings.Join(rels, ","))
	case AtomContains, AtomFTS, AtomFuzzy:
		fmt.Fprintf(b, "match:%d:%s:%s:%s:%d\n", a.Kind, writeTerm(a.Term), a.AttrKey, a.AttrValue, a.FuzzyDist)
	case AtomAttrs:
		keys := make([]string, 0, len(a.Attrs))
		for k := range a.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(b, "attrs:%s:", writeTerm(a.Term))
		for _, k := range keys {
			fmt.Fprintf(b, "%s=%s,", k, a.Attrs[k])
		}
		b.WriteString("\n")
	}
}
