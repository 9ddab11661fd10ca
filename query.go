package reco

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
)

// Query is a compiled boolean/numeric expression over an ImageParameters
// record. There is no expression-grammar library anywhere in the corpus, so
// this leans on the standard library's own Go expression parser: the
// expressions in practice are small arithmetic/boolean trees over a handful
// of named fields, which is exactly go/ast's bread and butter, and pulling
// in a general-purpose templating or scripting engine to evaluate six
// comparison operators would be the heavier dependency, not the lighter one.
type Query struct {
	exprs  []ast.Expr
	labels []string
}

// fieldLookup resolves a dotted field path ("hillas.intensity", "leakage.intensity_width_1")
// against an ImageParameters value.
var fieldLookup = map[string]func(p ImageParameters) float64{
	"hillas.x":                func(p ImageParameters) float64 { return p.Hillas.X },
	"hillas.y":                func(p ImageParameters) float64 { return p.Hillas.Y },
	"hillas.r":                func(p ImageParameters) float64 { return p.Hillas.R },
	"hillas.phi":              func(p ImageParameters) float64 { return p.Hillas.Phi },
	"hillas.psi":              func(p ImageParameters) float64 { return p.Hillas.Psi },
	"hillas.length":           func(p ImageParameters) float64 { return p.Hillas.Length },
	"hillas.width":            func(p ImageParameters) float64 { return p.Hillas.Width },
	"hillas.intensity":        func(p ImageParameters) float64 { return p.Hillas.Intensity },
	"hillas.skewness":         func(p ImageParameters) float64 { return p.Hillas.Skewness },
	"hillas.kurtosis":         func(p ImageParameters) float64 { return p.Hillas.Kurtosis },
	"leakage.pixels_width_1":    func(p ImageParameters) float64 { return p.Leakage.PixelsWidth1 },
	"leakage.pixels_width_2":    func(p ImageParameters) float64 { return p.Leakage.PixelsWidth2 },
	"leakage.intensity_width_1": func(p ImageParameters) float64 { return p.Leakage.IntensityWidth1 },
	"leakage.intensity_width_2": func(p ImageParameters) float64 { return p.Leakage.IntensityWidth2 },
	"concentration.cog":   func(p ImageParameters) float64 { return p.Concentration.Cog },
	"concentration.core":  func(p ImageParameters) float64 { return p.Concentration.Core },
	"concentration.pixel": func(p ImageParameters) float64 { return p.Concentration.Pixel },
	"morphology.num_pixels":  func(p ImageParameters) float64 { return float64(p.Morphology.NumPixels) },
	"morphology.num_islands": func(p ImageParameters) float64 { return float64(p.Morphology.NumIslands) },
	"intensity.max":  func(p ImageParameters) float64 { return p.Intensity.Max },
	"intensity.mean": func(p ImageParameters) float64 { return p.Intensity.Mean },
	"intensity.std":  func(p ImageParameters) float64 { return p.Intensity.Std },
}

// NewQuery parses a single boolean expression string.
func NewQuery(expr string) (*Query, error) {
	return NewQueryMap(map[string]string{"": expr})
}

// NewQueryMap parses a label -> expression map; the resulting Query is the
// conjunction of every entry, matching ImageQuery::add_expr in the original.
func NewQueryMap(exprs map[string]string) (*Query, error) {
	if len(exprs) == 0 {
		return nil, errors.Join(ErrQueryParse, errors.New("empty query"))
	}

	labels := make([]string, 0, len(exprs))
	for label := range exprs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	q := &Query{}
	for _, label := range labels {
		e, err := parser.ParseExpr(exprs[label])
		if err != nil {
			return nil, errors.Join(ErrQueryParse, err)
		}
		if err := validateQueryExpr(e); err != nil {
			return nil, errors.Join(ErrQueryParse, err)
		}
		q.exprs = append(q.exprs, e)
		q.labels = append(q.labels, label)
	}
	return q, nil
}

// validateQueryExpr rejects anything beyond the small arithmetic/boolean/
// comparison grammar the reconstructor needs: identifiers, numeric
// literals, unary +/-/!, and binary +-*/ && || and the six comparisons.
// true and false are plain identifiers here and fail at Eval as unknown
// fields.
func validateQueryExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Ident:
		return nil
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return errors.New("unsupported literal: " + n.Value)
		}
		return nil
	case *ast.ParenExpr:
		return validateQueryExpr(n.X)
	case *ast.UnaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.NOT:
			return validateQueryExpr(n.X)
		}
		return errors.New("unsupported unary operator")
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO,
			token.LAND, token.LOR,
			token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ:
			if err := validateQueryExpr(n.X); err != nil {
				return err
			}
			return validateQueryExpr(n.Y)
		}
		return errors.New("unsupported binary operator")
	case *ast.SelectorExpr:
		return validateQueryExpr(n.X)
	default:
		return errors.New("unsupported expression")
	}
}

// Eval returns true iff every sub-expression in the query evaluates truthy
// (non-zero for an arithmetic result, true for a boolean result).
func (q *Query) Eval(p ImageParameters) (bool, error) {
	for i, e := range q.exprs {
		v, err := evalQueryExpr(e, p)
		if err != nil {
			return false, errors.Join(ErrQueryParse, errors.New(q.labels[i]+": "+err.Error()))
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// queryValue is either a float64 or a bool, mirroring the original
// muParser-backed evaluator's dynamic value type.
type queryValue struct {
	isBool bool
	num    float64
	boolv  bool
}

func numVal(f float64) queryValue  { return queryValue{num: f} }
func boolVal(b bool) queryValue    { return queryValue{isBool: true, boolv: b} }

func truthy(v queryValue) bool {
	if v.isBool {
		return v.boolv
	}
	return v.num != 0
}

func evalQueryExpr(e ast.Expr, p ImageParameters) (queryValue, error) {
	switch n := e.(type) {
	case *ast.Ident:
		field, ok := fieldLookup[n.Name]
		if !ok {
			return queryValue{}, errors.New("unknown field: " + n.Name)
		}
		return numVal(field(p)), nil

	case *ast.SelectorExpr:
		path, err := selectorPath(n)
		if err != nil {
			return queryValue{}, err
		}
		field, ok := fieldLookup[path]
		if !ok {
			return queryValue{}, errors.New("unknown field: " + path)
		}
		return numVal(field(p)), nil

	case *ast.BasicLit:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return queryValue{}, errors.New("invalid numeric literal: " + n.Value)
		}
		return numVal(f), nil

	case *ast.ParenExpr:
		return evalQueryExpr(n.X, p)

	case *ast.UnaryExpr:
		v, err := evalQueryExpr(n.X, p)
		if err != nil {
			return queryValue{}, err
		}
		switch n.Op {
		case token.SUB:
			return numVal(-v.num), nil
		case token.ADD:
			return v, nil
		case token.NOT:
			return boolVal(!truthy(v)), nil
		}

	case *ast.BinaryExpr:
		left, err := evalQueryExpr(n.X, p)
		if err != nil {
			return queryValue{}, err
		}
		if n.Op == token.LAND {
			if !truthy(left) {
				return boolVal(false), nil
			}
			right, err := evalQueryExpr(n.Y, p)
			if err != nil {
				return queryValue{}, err
			}
			return boolVal(truthy(right)), nil
		}
		if n.Op == token.LOR {
			if truthy(left) {
				return boolVal(true), nil
			}
			right, err := evalQueryExpr(n.Y, p)
			if err != nil {
				return queryValue{}, err
			}
			return boolVal(truthy(right)), nil
		}

		right, err := evalQueryExpr(n.Y, p)
		if err != nil {
			return queryValue{}, err
		}
		switch n.Op {
		case token.ADD:
			return numVal(left.num + right.num), nil
		case token.SUB:
			return numVal(left.num - right.num), nil
		case token.MUL:
			return numVal(left.num * right.num), nil
		case token.QUO:
			return numVal(left.num / right.num), nil
		case token.LSS:
			return boolVal(left.num < right.num), nil
		case token.LEQ:
			return boolVal(left.num <= right.num), nil
		case token.GTR:
			return boolVal(left.num > right.num), nil
		case token.GEQ:
			return boolVal(left.num >= right.num), nil
		case token.EQL:
			return boolVal(left.num == right.num), nil
		case token.NEQ:
			return boolVal(left.num != right.num), nil
		}
	}
	return queryValue{}, errors.New("unsupported expression")
}

func selectorPath(n *ast.SelectorExpr) (string, error) {
	ident, ok := n.X.(*ast.Ident)
	if !ok {
		return "", errors.New("unsupported selector base")
	}
	return ident.Name + "." + n.Sel.Name, nil
}

