package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/guidanceplane/guidance/internal/apperr"
)

// RegisterCustomValidators registers guidance-specific validation rules.
// Must be called before validating GuidanceConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("regex", validateRegex); err != nil {
		return fmt.Errorf("register regex validator: %w", err)
	}
	return nil
}

// validateRegex reports whether the field compiles as a Go regular expression.
func validateRegex(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

// Validate validates GuidanceConfig using struct tags and cross-field rules.
func (c *GuidanceConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return apperr.NewConfigError("validator-setup", err)
	}

	if err := v.Struct(c); err != nil {
		return apperr.NewConfigError("", formatValidationErrors(err))
	}

	if err := c.validateNoDuplicatePatternNames(); err != nil {
		return apperr.NewConfigError("gates", err)
	}
	if err := c.validateAllowedToolsNotBlank(); err != nil {
		return apperr.NewConfigError("gates.allowed_tools", err)
	}
	return nil
}

func (c *GuidanceConfig) validateNoDuplicatePatternNames() error {
	seen := make(map[string]struct{})
	all := append(append([]NamedPatternConfig{}, c.Gates.DestructivePatterns...), c.Gates.SecretPatterns...)
	for _, p := range all {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate pattern name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func (c *GuidanceConfig) validateAllowedToolsNotBlank() error {
	for _, t := range c.Gates.AllowedTools {
		if strings.TrimSpace(t) == "" {
			return errors.New("allowed_tools entries must not be blank")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors into a single
// human-readable error, joining one message per violated field.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		messages := make([]string, 0, len(verrs))
		for _, e := range verrs {
			messages = append(messages, fmt.Sprintf("%s: failed %q validation", e.Namespace(), e.Tag()))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}
