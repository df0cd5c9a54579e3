// Package forms validates the login and signup forms before any request is
// made.
package forms

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	MinNameLength     = 2
)

const (
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Please enter a valid email address"
	MsgPasswordTooShort = "Password must be at least 8 characters long"
	MsgNameRequired     = "Name is required"
	MsgNameTooShort     = "Name must be at least 2 characters long"
	MsgConfirmRequired  = "Please confirm your password"
	MsgPasswordMismatch = "Passwords do not match"
)

// Field names used as keys in Errors.
const (
	FieldName            = "name"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Errors maps a field name to its message. A nil or empty Errors is valid.
type Errors map[string]string

func (e Errors) OK() bool { return len(e) == 0 }

// Get returns the message for field, or "".
func (e Errors) Get(field string) string { return e[field] }

func (e Errors) add(field, msg string) Errors {
	if e == nil {
		e = Errors{}
	}
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
	return e
}

type Login struct {
	Email    string
	Password string
}

type Signup struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

func ValidateLogin(in Login) Errors {
	var errs Errors
	errs = validateEmail(errs, in.Email)
	errs = validatePassword(errs, in.Password)
	return errs
}

func ValidateSignup(in Signup) Errors {
	var errs Errors

	switch name := strings.TrimSpace(in.Name); {
	case name == "":
		errs = errs.add(FieldName, MsgNameRequired)
	case utf8.RuneCountInString(name) < MinNameLength:
		errs = errs.add(FieldName, MsgNameTooShort)
	}

	errs = validateEmail(errs, in.Email)
	errs = validatePassword(errs, in.Password)

	switch {
	case in.ConfirmPassword == "":
		errs = errs.add(FieldConfirmPassword, MsgConfirmRequired)
	case in.ConfirmPassword != in.Password:
		errs = errs.add(FieldConfirmPassword, MsgPasswordMismatch)
	}
	return errs
}

func validateEmail(errs Errors, email string) Errors {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return errs.add(FieldEmail, MsgEmailRequired)
	case !emailPattern.MatchString(email):
		return errs.add(FieldEmail, MsgEmailInvalid)
	}
	return errs
}

func validatePassword(errs Errors, password string) Errors {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errs.add(FieldPassword, MsgPasswordTooShort)
	}
	return errs
}
