package Expr

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/apache/arrow/go/v17/arrow"
)

/*
A small participle grammar for test predicates and projections, e.g.

	age > 30 AND (name = 'Bob' OR salary * 1.1 >= 50000.0)
	department IS NOT NULL

Precedence from loosest to tightest: OR, AND, comparison, + -, * /.
*/

////////////////////////////////////////////////////////////////////////////////

var (
	exprLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "String", Pattern: `'(?:''|[^'])*'`},
		{Name: "Float", Pattern: `\d+\.\d+`},
		{Name: "Int", Pattern: `\d+`},
		{Name: "CompareOp", Pattern: `<=|>=|!=|<>|=|<|>`},
		{Name: "AddOp", Pattern: `[-+]`},
		{Name: "MulOp", Pattern: `[*/]`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Punct", Pattern: `[()]`},
		{Name: "whitespace", Pattern: `\s+`},
	})

	exprParser = participle.MustBuild[orExpr](
		participle.Lexer(exprLexer),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(2),
	)
)

type orExpr struct {
	And []*andExpr `@@ ( "OR" @@ )*`
}

type andExpr struct {
	Conditions []*condition `@@ ( "AND" @@ )*`
}

type condition struct {
	Left *sumExpr  `@@`
	Tail *condTail `@@?`
}

type condTail struct {
	Op    *string  `  @CompareOp`
	Right *sumExpr `  @@`
	Is    bool     `| @"IS"`
	Not   bool     `  @"NOT"?`
	Null  bool     `  @"NULL"`
}

type sumExpr struct {
	Left *productExpr `@@`
	Rest []*sumTail   `@@*`
}

type sumTail struct {
	Op    string       `@AddOp`
	Right *productExpr `@@`
}

type productExpr struct {
	Left *term          `@@`
	Rest []*productTail `@@*`
}

type productTail struct {
	Op    string `@MulOp`
	Right *term  `@@`
}

type term struct {
	Sub    *orExpr `  "(" @@ ")"`
	Value  *value  `| @@`
	Column *string `| @Ident`
}

type value struct {
	Str   *string  `  @String`
	Neg   bool     `| ( @"-"?`
	Float *float64 `    ( @Float`
	Int   *int64   `    | @Int ) )`
	Bool  *string  `| @("TRUE" | "FALSE")`
	Null  bool     `| @"NULL"`
}

// ParseExpr parses text and binds the result against schema, so every column
// is typed and every comparison has matching operand types.
func ParseExpr(text string, schema *arrow.Schema) (Expression, error) {
	untyped, err := ParseUntyped(text)
	if err != nil {
		return nil, err
	}
	return Bind(untyped, schema)
}

// ParseUntyped parses text without resolving columns.
func ParseUntyped(text string) (Expression, error) {
	ast, err := exprParser.ParseString("", text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %w", text, err)
	}
	return ast.build()
}

func (o *orExpr) build() (Expression, error) {
	var out Expression
	for _, a := range o.And {
		e, err := a.build()
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = e
			continue
		}
		out = NewBinaryExpr(out, Or, e)
	}
	return out, nil
}

func (a *andExpr) build() (Expression, error) {
	var out Expression
	for _, c := range a.Conditions {
		e, err := c.build()
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = e
			continue
		}
		out = NewBinaryExpr(out, And, e)
	}
	return out, nil
}

var compareOps = map[string]binaryOperator{
	"=":  Equal,
	"!=": NotEqual,
	"<>": NotEqual,
	"<":  LessThan,
	"<=": LessThanOrEqual,
	">":  GreaterThan,
	">=": GreaterThanOrEqual,
}

func (c *condition) build() (Expression, error) {
	left, err := c.Left.build()
	if err != nil {
		return nil, err
	}
	switch {
	case c.Tail == nil:
		return left, nil
	case c.Tail.Is:
		return &NullCheckExpr{Expr: left, Not: c.Tail.Not}, nil
	}
	right, err := c.Tail.Right.build()
	if err != nil {
		return nil, err
	}
	return NewBinaryExpr(left, compareOps[*c.Tail.Op], right), nil
}

func (s *sumExpr) build() (Expression, error) {
	out, err := s.Left.build()
	if err != nil {
		return nil, err
	}
	for _, t := range s.Rest {
		right, err := t.Right.build()
		if err != nil {
			return nil, err
		}
		op := Addition
		if t.Op == "-" {
			op = Subtraction
		}
		out = NewBinaryExpr(out, op, right)
	}
	return out, nil
}

func (p *productExpr) build() (Expression, error) {
	out, err := p.Left.build()
	if err != nil {
		return nil, err
	}
	for _, t := range p.Rest {
		right, err := t.Right.build()
		if err != nil {
			return nil, err
		}
		op := Multiplication
		if t.Op == "/" {
			op = Division
		}
		out = NewBinaryExpr(out, op, right)
	}
	return out, nil
}

func (t *term) build() (Expression, error) {
	switch {
	case t.Sub != nil:
		return t.Sub.build()
	case t.Value != nil:
		return t.Value.build(), nil
	case t.Column != nil:
		return NewColumnResolve(*t.Column), nil
	}
	return nil, fmt.Errorf("empty term")
}

func (v *value) build() *LiteralResolve {
	switch {
	case v.Str != nil:
		s := *v.Str
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		return NewLiteralResolve(arrow.BinaryTypes.String, s)
	case v.Float != nil:
		f := *v.Float
		if v.Neg {
			f = -f
		}
		return NewLiteralResolve(arrow.PrimitiveTypes.Float64, f)
	case v.Int != nil:
		i := *v.Int
		if v.Neg {
			i = -i
		}
		return NewLiteralResolve(arrow.PrimitiveTypes.Int64, i)
	case v.Bool != nil:
		return NewLiteralResolve(arrow.FixedWidthTypes.Boolean, strings.EqualFold(*v.Bool, "true"))
	}
	return NewLiteralResolve(arrow.Null, nil)
}
