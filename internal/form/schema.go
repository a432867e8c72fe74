package form

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Values はフィールド名から入力値へのマッピング。
type Values map[string]string

// FieldErrors はフィールド名からエラーメッセージへのマッピング。
type FieldErrors map[string]string

// Schema はフォーム値の検証規則。
// 検証に成功した場合は検証済みの値を、失敗した場合はフィールドごとのエラーを返す。
type Schema interface {
	Validate(values Values) (Values, FieldErrors)
	// Has は指定フィールドの規則が定義されているかを返す。
	Has(field string) bool
}

// Rule はvalidatorのタグ1つと、それに違反した場合のメッセージの組。
type Rule struct {
	Tag     string
	Message string
}

// FieldRules は1フィールドに適用する規則の列。先頭から順に評価し、
// 最初に違反した規則のメッセージを採用する。
type FieldRules struct {
	Field string
	Rules []Rule
}

// RuleSchema はgo-playground/validatorのタグで記述したSchema実装。
type RuleSchema struct {
	validate *validator.Validate
	fields   []FieldRules
	index    map[string]int
}

var (
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	personNamePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	upperPattern      = regexp.MustCompile(`[A-Z]`)
	lowerPattern      = regexp.MustCompile(`[a-z]`)
	digitPattern      = regexp.MustCompile(`[0-9]`)
	specialPattern    = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// customValidations はRuleSchemaで使える独自タグ。
var customValidations = map[string]*regexp.Regexp{
	"username":    usernamePattern,
	"person_name": personNamePattern,
	"has_upper":   upperPattern,
	"has_lower":   lowerPattern,
	"has_digit":   digitPattern,
	"has_special": specialPattern,
}

// newValidator は独自タグを登録したvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New()
	for tag, pattern := range customValidations {
		p := pattern
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return p.MatchString(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("form: failed to register validation %q: %v", tag, err))
		}
	}
	return v
}

// NewRuleSchema はフィールド規則からRuleSchemaを生成する。
func NewRuleSchema(fields ...FieldRules) *RuleSchema {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Field] = i
	}
	return &RuleSchema{
		validate: newValidator(),
		fields:   fields,
		index:    index,
	}
}

// Has は指定フィールドの規則が定義されているかを返す。
func (s *RuleSchema) Has(field string) bool {
	_, ok := s.index[field]
	return ok
}

// Validate は値を検証する。
// 検証済みの値にはスキーマに定義されたフィールドのみが含まれる。
func (s *RuleSchema) Validate(values Values) (Values, FieldErrors) {
	validated := make(Values, len(s.fields))
	errs := FieldErrors{}

	for _, f := range s.fields {
		value := values[f.Field]
		for _, rule := range f.Rules {
			if err := s.validate.Var(value, rule.Tag); err != nil {
				errs[f.Field] = rule.Message
				break
			}
		}
		validated[f.Field] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return validated, nil
}

// compile-time interface check
var _ Schema = (*RuleSchema)(nil)
