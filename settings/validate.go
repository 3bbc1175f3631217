package settings

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/akheron/nosedjango/errors"
)

var structValidator = validator.New()

// Validate checks loaded settings for invalid values. Struct-tag rules run
// first, then the cross-field checks the tags cannot express.
func Validate(s *Settings) error {
	if err := structValidator.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			messages := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				messages = append(messages, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.Validation(strings.Join(messages, "; "))
		}
		return errors.Validation(err.Error())
	}

	if s.Database.Engine != "sqlite" && s.Database.Name == "" {
		return errors.Validation("database.name is required for " + s.Database.Engine)
	}
	if err := s.Logging.Validate(); err != nil {
		return errors.Validation(err.Error())
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		*target = verrs
		return true
	}
	return false
}
