package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// SpecialCharacters is the set of symbols accepted by RequireSpecialCharacterRule.
const SpecialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules in order.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// DefaultPasswordValidator returns the standard policy: minimum length,
// uppercase, lowercase, digit, and special character, checked in that order.
func DefaultPasswordValidator(minLength, minStrengthScore int) *PasswordValidator {
	rules := []PasswordRule{
		MinLengthRule(minLength),
		RequireUppercaseRule(),
		RequireLowercaseRule(),
		RequireDigitRule(),
		RequireSpecialCharacterRule(),
	}
	if minStrengthScore > 0 {
		rules = append(rules, RequirePasswordStrengthRule(minStrengthScore))
	}
	return NewPasswordValidator(rules...)
}

// Validate executes all rules and returns the first encountered violation.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireUppercaseRule ensures the password contains at least one uppercase letter.
func RequireUppercaseRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsUpper(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "uppercase",
			Message: "password must include at least one uppercase letter",
		}
	})
}

// RequireLowercaseRule ensures the password contains at least one lowercase letter.
func RequireLowercaseRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsLower(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "lowercase",
			Message: "password must include at least one lowercase letter",
		}
	})
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsDigit(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "digit",
			Message: "password must include at least one digit",
		}
	})
}

// RequireSpecialCharacterRule ensures the password contains at least one
// character from SpecialCharacters.
func RequireSpecialCharacterRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if strings.ContainsAny(password, SpecialCharacters) {
			return nil
		}
		return &PasswordValidationError{
			Code:    "special_character",
			Message: "password must include at least one special character",
		}
	})
}

// RequireDifferentFrom ensures the new password differs from the provided comparator.
func RequireDifferentFrom(comparator string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if password == comparator {
			return &PasswordValidationError{
				Code:    "different",
				Message: "new password must be different from current password",
			}
		}
		return nil
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score to reject weak passwords.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}
