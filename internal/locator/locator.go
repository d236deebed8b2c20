package locator

type Kind string

const (
	KindLogin  Kind = "login"
	KindSearch Kind = "search"
)

// Set names the interactive elements of one rendered page. An empty field
// means the element does not apply to that page.
type Set struct {
	LoginField     string `json:"login_field,omitempty" toml:"login_field"`
	PasswordField  string `json:"password_field,omitempty" toml:"password_field"`
	QueryField     string `json:"query_field,omitempty" toml:"query_field"`
	SubmitSelector string `json:"submit_selector,omitempty" toml:"submit_selector"`
}

func (s Set) IsZero() bool {
	return s == Set{}
}

// Fill returns s with every empty field taken from other.
func (s Set) Fill(other Set) Set {
	if s.LoginField == "" {
		s.LoginField = other.LoginField
	}
	if s.PasswordField == "" {
		s.PasswordField = other.PasswordField
	}
	if s.QueryField == "" {
		s.QueryField = other.QueryField
	}
	if s.SubmitSelector == "" {
		s.SubmitSelector = other.SubmitSelector
	}
	return s
}

// Required lists the fields a page of the given kind cannot work without.
func (s Set) Required(kind Kind) map[string]string {
	switch kind {
	case KindLogin:
		return map[string]string{
			"login_field":     s.LoginField,
			"password_field":  s.PasswordField,
			"submit_selector": s.SubmitSelector,
		}
	default:
		return map[string]string{
			"query_field":     s.QueryField,
			"submit_selector": s.SubmitSelector,
		}
	}
}
