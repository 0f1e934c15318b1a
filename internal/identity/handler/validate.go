package handler

import (
	"regexp"
	"unicode/utf8"
)

const (
	maxEmailLen    = 255
	minPasswordLen = 8
	maxPasswordLen = 128
	minNameLen     = 2
	maxNameLen     = 50
)

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// Each validator returns the first failure as a client message, or "".

func validateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > maxEmailLen {
		return "email must be at most 255 characters"
	}
	if !emailRegex.MatchString(email) {
		return "email must be a valid email address"
	}
	return ""
}

func validatePassword(password string) string {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen {
		return "password must be at least 8 characters"
	}
	if n > maxPasswordLen {
		return "password must be at most 128 characters"
	}
	return ""
}

func validateName(field, v string) string {
	n := utf8.RuneCountInString(v)
	if n < minNameLen || n > maxNameLen {
		return field + " must be between 2 and 50 characters"
	}
	return ""
}

func validateRegister(in registerRequest) string {
	for _, msg := range []string{
		validateName("firstName", in.FirstName),
		validateName("lastName", in.LastName),
		validateEmail(in.Email),
		validatePassword(in.Password),
	} {
		if msg != "" {
			return msg
		}
	}
	return ""
}

func validateLogin(in loginRequest) string {
	if msg := validateEmail(in.Email); msg != "" {
		return msg
	}
	return validatePassword(in.Password)
}
