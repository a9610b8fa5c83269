/*
Package pattern compiles structural patterns written in Go expression syntax
and matches them against runtime values.

A pattern is parsed with go/parser, so no grammar beyond Go's own expression
syntax is introduced. The forms understood are:

	_                      wildcard
	name                   binding; matches anything and captures it
	1, -2.5, "s", 'c'      literal, compared with Go == semantics
	true, false, nil       boolean literals and the nil value
	T{F: p, G: q}          struct of type T; only the listed fields are tested
	T{p, q}                struct of type T; every field, in order
	_{F: p}                struct of any type that has field F
	&p, *p                 non-nil pointer whose pointee matches p
	[]T{p, q}, []_{p, q}   slice of exactly two elements
	[2]T{p, q}, [...]_{p}  array
	map[K]V{"k": p}        map holding key "k" whose value matches p
	Some(p), None()        non-nil pointer (pointee matches p) / nil pointer
	T(p)                   dynamic type is T, then p is matched on the value
	Name(p, q)             registered extractor, see RegisterExtractor
	p && cond              guard evaluated over the bindings of p

Bindings are only visible once the whole pattern, guard included, has
matched. Alternation (p || q) is rejected.

Type names are compared with the dynamic type of the value. A qualified
name such as geo.Point requires the package name to agree; an unqualified
one is looked up in the package given to MatchIn, or in any package by
Match.

Result and guard expressions are Go expressions as well. They may use
identifiers, literals, field selection, indexing, slicing, method calls,
len, cap, conversions to basic types, unary and binary operators. Names must
be bound by the pattern or supplied through a Scope; anything else is an
*ExpansionError returned by Compile or CompileExpr, before any value is seen.

Basic usage:

	p := pattern.MustCompile(`Company{States: states} && len(states) > 0`)
	b, err := p.MatchValue(company)
	if err != nil {
	    // errors.Is(err, pattern.ErrNoMatch) for a structural mismatch
	}
	states := pattern.Value[[]string](b, "states")
*/
package pattern
