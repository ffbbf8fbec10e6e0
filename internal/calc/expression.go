package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Calculator evaluates arithmetic expressions in a CEL sandbox. Integer
// literals are promoted to doubles so that mixed arithmetic such as
// "25000 * 4.8 / 100 / 12" type-checks.
type Calculator struct {
	env *cel.Env
}

func NewCalculator() (*Calculator, error) {
	env, err := cel.NewEnv(
		cel.Function("pow",
			cel.Overload("pow_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val {
					return types.Double(math.Pow(toFloat(a), toFloat(b)))
				}))),
		cel.Function("sqrt",
			cel.Overload("sqrt_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(a ref.Val) ref.Val {
					return types.Double(math.Sqrt(toFloat(a)))
				}))),
		cel.Function("abs",
			cel.Overload("abs_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(a ref.Val) ref.Val {
					return types.Double(math.Abs(toFloat(a)))
				}))),
		cel.Function("round",
			cel.Overload("round_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(a ref.Val) ref.Val {
					return types.Double(math.Round(toFloat(a)))
				})),
			cel.Overload("round_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val {
					scale := math.Pow(10, toFloat(b))
					return types.Double(math.Round(toFloat(a)*scale) / scale)
				}))),
		cel.Function("min",
			cel.Overload("min_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val {
					return types.Double(math.Min(toFloat(a), toFloat(b)))
				}))),
		cel.Function("max",
			cel.Overload("max_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val {
					return types.Double(math.Max(toFloat(a), toFloat(b)))
				}))),
	)
	if err != nil {
		return nil, fmt.Errorf("build calculator env: %w", err)
	}
	return &Calculator{env: env}, nil
}

func toFloat(v ref.Val) float64 {
	switch n := v.(type) {
	case types.Double:
		return float64(n)
	case types.Int:
		return float64(n)
	default:
		return math.NaN()
	}
}

// Evaluate compiles and runs expr, returning the result as text.
func (c *Calculator) Evaluate(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty expression")
	}

	ast, iss := c.env.Compile(promoteIntLiterals(expr))
	if iss != nil && iss.Err() != nil {
		return "", fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return "", fmt.Errorf("program %q: %w", expr, err)
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		return "", fmt.Errorf("eval %q: %w", expr, err)
	}

	switch v := out.Value().(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("eval %q: result is not a finite number", expr)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// EvaluateBatch evaluates each expression independently. Failed entries carry
// an error description instead of a number.
func (c *Calculator) EvaluateBatch(exprs []string) []any {
	results := make([]any, len(exprs))
	for i, e := range exprs {
		s, err := c.Evaluate(e)
		if err != nil {
			results[i] = fmt.Sprintf("Error in calculation: %v", err)
			continue
		}
		if f, perr := strconv.ParseFloat(s, 64); perr == nil {
			results[i] = f
		} else {
			results[i] = s
		}
	}
	return results
}

// promoteIntLiterals rewrites bare integer literals ("12") as doubles ("12.0").
func promoteIntLiterals(expr string) string {
	var b strings.Builder
	rs := []rune(expr)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if !unicode.IsDigit(r) || (i > 0 && isIdentOrDot(rs[i-1])) {
			b.WriteRune(r)
			continue
		}
		j := i
		for j < len(rs) && unicode.IsDigit(rs[j]) {
			j++
		}
		b.WriteString(string(rs[i:j]))
		if j >= len(rs) || !(isIdentOrDot(rs[j]) || rs[j] == 'e' || rs[j] == 'E') {
			b.WriteString(".0")
		}
		i = j - 1
	}
	return b.String()
}

func isIdentOrDot(r rune) bool {
	return r == '.' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
