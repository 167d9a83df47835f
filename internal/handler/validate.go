package handler

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators adds the custom binding rules used by request structs.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("rollnumber", rollNumber)
		}
	})
}

// rollNumber accepts a blank value (reported later as a missing roll number)
// or a single token of printable characters in valid UTF-8.
func rollNumber(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
