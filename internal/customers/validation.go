package customers

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Eleven digit mobile numbers on the 013-019 operator prefixes.
var phonePattern = regexp.MustCompile(`^01[3-9]\d{8}$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("bdphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = StatusActive
	}
	return in
}

func (s *Service) validate(in Input) (Input, error) {
	in = normalize(in)
	if err := s.validator.Struct(in); err != nil {
		return Input{}, err
	}
	return in, nil
}
