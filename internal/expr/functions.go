package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/shaiso/tableflow/internal/domain"
)

// aggregateFunc сворачивает набор значений в одно.
type aggregateFunc func(values []any) (any, error)

var aggregates = map[string]aggregateFunc{
	"Sum":     aggSum,
	"Minimum": aggMinimum,
	"Maximum": aggMaximum,
	"Count":   aggCount,
	"Average": aggAverage,
}

var funcAliases = map[string]string{
	"sum":     "Sum",
	"minimum": "Minimum",
	"min":     "Minimum",
	"maximum": "Maximum",
	"max":     "Maximum",
	"count":   "Count",
	"average": "Average",
	"avg":     "Average",
	"mean":    "Average",
}

// canonicalFunc нормализует имя функции без учёта регистра.
func canonicalFunc(name string) (string, bool) {
	canonical, ok := funcAliases[strings.ToLower(name)]
	return canonical, ok
}

// Functions возвращает имена поддерживаемых агрегатных функций.
func Functions() []string {
	return []string{"Sum", "Minimum", "Maximum", "Count", "Average"}
}

func numbers(fn string, values []any) ([]float64, error) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := domain.ToNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s over non-numeric value %v", ErrType, fn, v)
		}
		out = append(out, f)
	}
	return out, nil
}

func aggSum(values []any) (any, error) {
	nums, err := numbers("Sum", values)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum, nil
}

func aggMinimum(values []any) (any, error) {
	nums, err := numbers("Minimum", values)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return float64(0), nil
	}
	m := math.Inf(1)
	for _, n := range nums {
		m = math.Min(m, n)
	}
	return m, nil
}

func aggMaximum(values []any) (any, error) {
	nums, err := numbers("Maximum", values)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return float64(0), nil
	}
	m := math.Inf(-1)
	for _, n := range nums {
		m = math.Max(m, n)
	}
	return m, nil
}

func aggCount(values []any) (any, error) {
	var n float64
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return n, nil
}

func aggAverage(values []any) (any, error) {
	nums, err := numbers("Average", values)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return float64(0), nil
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums)), nil
}
