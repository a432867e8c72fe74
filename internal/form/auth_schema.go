package form

// emailRules はサインイン/サインアップ共通のメールアドレス規則。
var emailRules = FieldRules{
	Field: "email",
	Rules: []Rule{
		{Tag: "required", Message: "Email is required"},
		{Tag: "email", Message: "Please provide a valid email address."},
	},
}

// SignInSchema はサインインフォームのスキーマを返す。
func SignInSchema() *RuleSchema {
	return NewRuleSchema(
		emailRules,
		FieldRules{
			Field: "password",
			Rules: []Rule{
				{Tag: "min=6", Message: "Password must be at least 6 characters long."},
				{Tag: "max=100", Message: "Password cannot exceed 100 characters."},
			},
		},
	)
}

// SignUpSchema はサインアップフォームのスキーマを返す。
func SignUpSchema() *RuleSchema {
	return NewRuleSchema(
		FieldRules{
			Field: "username",
			Rules: []Rule{
				{Tag: "min=3", Message: "Username must be at least 3 characters long."},
				{Tag: "max=30", Message: "Username cannot exceed 30 characters."},
				{Tag: "username", Message: "Username can only contain letters, numbers, and underscores."},
			},
		},
		FieldRules{
			Field: "name",
			Rules: []Rule{
				{Tag: "required", Message: "Name is required."},
				{Tag: "max=50", Message: "Name cannot exceed 50 characters."},
				{Tag: "person_name", Message: "Name can only contain letters and spaces."},
			},
		},
		emailRules,
		FieldRules{
			Field: "password",
			Rules: []Rule{
				{Tag: "min=6", Message: "Password must be at least 6 characters long."},
				{Tag: "max=100", Message: "Password cannot exceed 100 characters."},
				{Tag: "has_upper", Message: "Password must contain at least one uppercase letter."},
				{Tag: "has_lower", Message: "Password must contain at least one lowercase letter."},
				{Tag: "has_digit", Message: "Password must contain at least one number."},
				{Tag: "has_special", Message: "Password must contain at least one special character."},
			},
		},
	)
}

// SignInFields はサインインフォームの入力欄。
var SignInFields = []Field{
	{Name: "email", Kind: FieldEmail},
	{Name: "password", Kind: FieldPassword},
}

// SignUpFields はサインアップフォームの入力欄。
var SignUpFields = []Field{
	{Name: "email", Kind: FieldEmail},
	{Name: "password", Kind: FieldPassword},
	{Name: "name", Kind: FieldText},
	{Name: "username", Kind: FieldText},
}

// DefaultsFor はフィールドの初期値（すべて空文字）を返す。
func DefaultsFor(fields []Field) Values {
	values := make(Values, len(fields))
	for _, f := range fields {
		values[f.Name] = ""
	}
	return values
}
