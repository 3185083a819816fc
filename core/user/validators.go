package user

import (
	"fmt"
	"sort"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	courseTag  = "course"
	courseText = "invalid course"

	// password policy
	pwdMinLen     = 6
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"
)

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	sort.Strings(AllRoles)
	for _, role := range roles {
		idx := sort.SearchStrings(AllRoles, role)
		if idx >= len(AllRoles) || AllRoles[idx] != role {
			return false
		}
	}
	return true
}

// courseValidation checks that the provided course is a known one.
func courseValidation(fl validator.FieldLevel) bool {
	course := fl.Field().String()
	for _, c := range Courses {
		if c == course {
			return true
		}
	}
	return false
}

// passwordStructValidation applies the password policy on Register, NewUser
// and UpdateUser structs.
func passwordStructValidation(sl validator.StructLevel) {
	var pwd string
	switch usr := sl.Current().Interface().(type) {
	case Register:
		pwd = usr.Password
	case NewUser:
		pwd = usr.Password
	case UpdateUser:
		if usr.Password == "" {
			return
		}
		pwd = usr.Password
	default:
		return
	}
	validatePassword(pwd, sl)
}

// validatePassword applies the password policy to the provided password:
// - minLen: 6
// - no whitespace
// - not all numeric
func validatePassword(pwd string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	if len(pwd) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}

	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len(pwd) {
		reportErr(pwdNotAllNumTag)
	}
}
