package alarm

import (
	"fmt"
	"strconv"
	"strings"

	"datapulse/pkg/runtime/constant"
)

// Compare evaluates current op trigger. A trigger that parses as a float
// selects numeric comparison; anything else is compared as a boolean
// literal on the upper cased string forms, where only == and != apply.
func Compare(current interface{}, op constant.Operator, trigger string) (bool, error) {
	trigger = strings.TrimSpace(trigger)
	if want, err := strconv.ParseFloat(trigger, 64); err == nil {
		got, err := toFloat(current)
		if err != nil {
			return false, err
		}
		return compareNumeric(got, op, want)
	}
	return compareLiteral(toLiteral(current), op, strings.ToUpper(trigger))
}

func compareNumeric(got float64, op constant.Operator, want float64) (bool, error) {
	switch op {
	case constant.GreaterThan:
		return got > want, nil
	case constant.LessThan:
		return got < want, nil
	case constant.Equal:
		return got == want, nil
	case constant.NotEqual:
		return got != want, nil
	default:
		return false, fmt.Errorf("%w: %v", constant.ErrUnknownOperator, op)
	}
}

func compareLiteral(got string, op constant.Operator, want string) (bool, error) {
	switch op {
	case constant.Equal:
		return got == want, nil
	case constant.NotEqual:
		return got != want, nil
	case constant.GreaterThan, constant.LessThan:
		return false, fmt.Errorf("%w: %s %s %s", constant.ErrIncomparable, got, op, want)
	default:
		return false, fmt.Errorf("%w: %v", constant.ErrUnknownOperator, op)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case uint16:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", constant.ErrIncomparable, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", constant.ErrIncomparable, v)
	}
}

func toLiteral(v interface{}) string {
	switch t := v.(type) {
	case bool:
		return strings.ToUpper(strconv.FormatBool(t))
	case string:
		return strings.ToUpper(strings.TrimSpace(t))
	default:
		return strings.ToUpper(fmt.Sprint(t))
	}
}
