package fairness

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/liamcoop/studentrisk/features"
)

// RecordVariable is the name a group expression uses for the raw record.
const RecordVariable = "record"

// exprCostLimit bounds the work a single group expression evaluation may do.
const exprCostLimit = 100000

// Grouping assigns a raw record to a group. ok is false when the record has
// no group value and must be left out of the group metrics.
type Grouping interface {
	Name() string
	GroupOf(rec features.Record) (group string, ok bool, err error)
}

// attributeGrouping groups by the stringified value of one raw attribute.
type attributeGrouping struct {
	attr string
}

// ByAttribute groups by a raw attribute, protected ones included.
func ByAttribute(attr string) Grouping { return attributeGrouping{attr: attr} }

func (g attributeGrouping) Name() string { return g.attr }

func (g attributeGrouping) GroupOf(rec features.Record) (string, bool, error) {
	v, ok := rec[g.attr]
	if !ok || v == nil {
		return "", false, nil
	}
	return FormatGroup(v), true, nil
}

// exprGrouping groups by the result of a compiled CEL expression.
type exprGrouping struct {
	expr string
	prog cel.Program
}

// CompileExpression compiles a CEL group expression over the raw record,
// e.g. `record["Age at enrollment"] > 23 ? "mature" : "young"`. It is
// compiled once and safe for concurrent evaluation.
func CompileExpression(expr string) (Grouping, error) {
	env, err := cel.NewEnv(
		cel.Variable(RecordVariable, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(exprCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &exprGrouping{expr: expr, prog: prog}, nil
}

func (g *exprGrouping) Name() string { return g.expr }

// GroupOf evaluates the expression. A record the expression cannot be
// evaluated on, such as one missing a key it reads, has no group.
func (g *exprGrouping) GroupOf(rec features.Record) (string, bool, error) {
	out, _, err := g.prog.Eval(map[string]any{RecordVariable: map[string]any(rec)})
	if err != nil {
		return "", false, nil
	}
	if _, null := out.(types.Null); null {
		return "", false, nil
	}
	v := out.Value()
	switch v.(type) {
	case string, bool, int64, uint64, float64:
		return FormatGroup(v), true, nil
	default:
		return "", false, fmt.Errorf("group expression returned %s, want a scalar", out.Type().TypeName())
	}
}

// FormatGroup renders a group value. Integral numbers have no decimal point
// so 1 and 1.0 land in the same group.
func FormatGroup(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FormatGroup(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
}

// sortGroups orders group values numerically when all of them are numbers,
// lexicographically otherwise.
func sortGroups(groups []string) {
	nums := make(map[string]float64, len(groups))
	for _, g := range groups {
		f, err := strconv.ParseFloat(g, 64)
		if err != nil {
			sort.Strings(groups)
			return
		}
		nums[g] = f
	}
	sort.Slice(groups, func(i, j int) bool {
		if nums[groups[i]] != nums[groups[j]] {
			return nums[groups[i]] < nums[groups[j]]
		}
		return groups[i] < groups[j]
	})
}
