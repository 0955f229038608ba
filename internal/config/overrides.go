package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// lookup walks a dotted key such as SOLVER.BASE_LR to the settable field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	v := reflect.ValueOf(c).Elem()
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%w: %s (%s is not a section)", ErrUnknownKey, key, strings.Join(parts[:i], "."))
		}
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		v = field
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s is a section, not a value", ErrUnknownKey, key)
	}
	return v, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setLiteral parses raw as a literal of the field's existing type.
// Python spellings used by existing launch scripts are accepted:
// ('0') for strings, (40, 70) for sequences, True/False for booleans.
func setLiteral(field reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)
	switch field.Kind() {
	case reflect.String:
		field.SetString(unquote(raw))
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("expected a boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("expected an integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("expected a number: %w", err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		seq := raw
		if strings.HasPrefix(seq, "(") && strings.HasSuffix(seq, ")") {
			seq = "[" + seq[1:len(seq)-1] + "]"
		}
		if !strings.HasPrefix(seq, "[") {
			return fmt.Errorf("expected a sequence like [a, b], got %q", raw)
		}
		out := reflect.New(field.Type())
		if err := yaml.Unmarshal([]byte(seq), out.Interface()); err != nil {
			return fmt.Errorf("expected a %s: %w", field.Type(), err)
		}
		field.Set(out.Elem())
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// unquote strips one grouping paren and one pair of matching quotes.
func unquote(s string) string {
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && !strings.HasSuffix(s, ",)") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
