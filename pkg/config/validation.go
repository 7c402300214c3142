package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct tags plus a few
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("%s", formatValidationErrors(errs))
		}
		return err
	}

	if cfg.DataPath.WindowMin > cfg.DataPath.WindowMax {
		return fmt.Errorf("datapath.window_min (%d) must not exceed datapath.window_max (%d)",
			cfg.DataPath.WindowMin, cfg.DataPath.WindowMax)
	}

	if cfg.Store.InitialBackoff > cfg.Store.MaxBackoff {
		return fmt.Errorf("store.initial_backoff (%s) must not exceed store.max_backoff (%s)",
			cfg.Store.InitialBackoff, cfg.Store.MaxBackoff)
	}

	return nil
}

// formatValidationErrors turns validator errors into readable messages
// keyed by the YAML field path.
func formatValidationErrors(errs validator.ValidationErrors) string {
	var msgs []string
	for _, e := range errs {
		field := yamlFieldPath(e.Namespace())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required (%s)", field, e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", field, e.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be <= %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// yamlFieldPath converts a validator namespace like
// "Config.DataPath.Workers" to "datapath.workers".
func yamlFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (s[i-1] < 'A' || s[i-1] > 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
