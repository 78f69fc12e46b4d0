package functions

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RegisterBuiltins installs the standard transformations. Called once
// at startup; a duplicate name is a programming error.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Func{
		"add":          add,
		"subtract":     subtract,
		"multiply":     multiply,
		"to_lowercase": toLowercase,
		"to_uppercase": toUppercase,
	}
	for name, fn := range builtins {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func coerceNumber(name, arg, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("%s: %q is required and must be numeric", name, arg)
	}
	n, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q must be numeric (got %q)", name, arg, value)
	}
	return n, nil
}

func arithmetic(name string, op func(a, b decimal.Decimal) decimal.Decimal) Func {
	return func(var1, var2 string) (string, error) {
		a, err := coerceNumber(name, "var1", var1)
		if err != nil {
			return "", err
		}
		b, err := coerceNumber(name, "var2", var2)
		if err != nil {
			return "", err
		}
		return op(a, b).String(), nil
	}
}

var (
	add      = arithmetic("add", func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) })
	subtract = arithmetic("subtract", func(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) })
	multiply = arithmetic("multiply", func(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) })
)

func toLowercase(var1, _ string) (string, error) {
	if var1 == "" {
		return "", fmt.Errorf("to_lowercase: var1 is required")
	}
	return strings.ToLower(var1), nil
}

func toUppercase(var1, _ string) (string, error) {
	if var1 == "" {
		return "", fmt.Errorf("to_uppercase: var1 is required")
	}
	return strings.ToUpper(var1), nil
}
