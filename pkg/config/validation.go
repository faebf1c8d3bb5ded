package config

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus custom rules
// that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Mounts.Store.Type == "static" && len(cfg.Mounts.Static) == 0 {
		return fmt.Errorf("mounts: static store selected but no static mounts configured")
	}

	prefixes := make(map[string]bool)
	for i, m := range cfg.Mounts.Static {
		if prefixes[m.URLPrefix] {
			return fmt.Errorf("mounts.static[%d]: duplicate url_prefix %q", i, m.URLPrefix)
		}
		prefixes[m.URLPrefix] = true

		if !filepath.IsAbs(m.LocalRoot) {
			return fmt.Errorf("mounts.static[%d]: local_root %q must be absolute", i, m.LocalRoot)
		}
		if m.Quota != "" {
			if _, err := humanize.ParseBytes(m.Quota); err != nil {
				return fmt.Errorf("mounts.static[%d]: invalid quota %q: %w", i, m.Quota, err)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
