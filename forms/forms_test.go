package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLogin(t *testing.T) {
	tests := []struct {
		name string
		in   Login
		want Errors
	}{
		{
			name: "empty fields",
			in:   Login{},
			want: Errors{FieldEmail: MsgEmailRequired, FieldPassword: MsgPasswordTooShort},
		},
		{
			name: "invalid email",
			in:   Login{Email: "invalid-email", Password: "password123"},
			want: Errors{FieldEmail: MsgEmailInvalid},
		},
		{
			name: "short password",
			in:   Login{Email: "test@example.com", Password: "123"},
			want: Errors{FieldPassword: MsgPasswordTooShort},
		},
		{name: "valid", in: Login{Email: "test@example.com", Password: "password123"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ValidateLogin(test.in)

			if test.want == nil {
				assert.True(t, got.OK(), "unexpected errors %v", got)
				return
			}
			assert.Equal(t, test.want, got)
		})
	}
}

func TestValidateSignup(t *testing.T) {
	valid := Signup{Name: "Test User", Email: "test@example.com", Password: "password123", ConfirmPassword: "password123"}

	tests := []struct {
		name   string
		mutate func(*Signup)
		want   Errors
	}{
		{
			name:   "empty fields",
			mutate: func(s *Signup) { *s = Signup{} },
			want: Errors{
				FieldName:            MsgNameRequired,
				FieldEmail:           MsgEmailRequired,
				FieldPassword:        MsgPasswordTooShort,
				FieldConfirmPassword: MsgConfirmRequired,
			},
		},
		{name: "short name", mutate: func(s *Signup) { s.Name = "A" }, want: Errors{FieldName: MsgNameTooShort}},
		{name: "blank name", mutate: func(s *Signup) { s.Name = "   " }, want: Errors{FieldName: MsgNameRequired}},
		{
			name:   "passwords differ",
			mutate: func(s *Signup) { s.ConfirmPassword = "different123" },
			want:   Errors{FieldConfirmPassword: MsgPasswordMismatch},
		},
		{name: "valid", mutate: func(*Signup) {}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			in := valid
			test.mutate(&in)

			got := ValidateSignup(in)

			if test.want == nil {
				assert.True(t, got.OK(), "unexpected errors %v", got)
				return
			}
			assert.Equal(t, test.want, got)
		})
	}
}

func TestErrors_Get(t *testing.T) {
	var errs Errors
	assert.True(t, errs.OK())
	assert.Empty(t, errs.Get(FieldEmail))

	errs = ValidateLogin(Login{Email: "nope"})
	assert.Equal(t, MsgEmailInvalid, errs.Get(FieldEmail))
	assert.False(t, errs.OK())
}
