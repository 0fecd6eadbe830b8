package demographics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/models"
)

// subjectValidate is shared by every validation call; validator caches struct
// metadata so a single instance is cheap to reuse.
var subjectValidate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	if err := registerRules(subjectValidate); err != nil {
		panic(fmt.Sprintf("demographics: register validation rules: %v", err))
	}
}

// registerRules adds the custom tags used by the subject schema.
func registerRules(v *validator.Validate) error {
	return v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ValidateSubject checks a subject against its schema and returns a
// *biaserr.ValidationError naming every failing field.
func ValidateSubject(s *models.Subject) error {
	if s == nil {
		return biaserr.Validation("subject is required")
	}
	err := subjectValidate.Struct(s)
	if err == nil {
		return validateOutcomes(s)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return biaserr.Validation(err.Error())
	}
	fields := make([]string, 0, len(verrs))
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
		reasons = append(reasons, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return &biaserr.ValidationError{Fields: fields, Reason: strings.Join(reasons, "; ")}
}

// validateOutcomes requires every expected outcome to reference a response.
func validateOutcomes(s *models.Subject) error {
	if len(s.ExpectedOutcomes) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(s.Responses))
	for _, r := range s.Responses {
		if r.ID != "" {
			ids[r.ID] = struct{}{}
		}
	}
	for i, o := range s.ExpectedOutcomes {
		if _, ok := ids[o.ResponseID]; !ok {
			return biaserr.Validation(
				fmt.Sprintf("response %q not found", o.ResponseID),
				fmt.Sprintf("Subject.ExpectedOutcomes[%d].ResponseID", i),
			)
		}
	}
	return nil
}

// ValidateDemographics checks that d carries the required fields.
func ValidateDemographics(d models.Demographics) error {
	if err := subjectValidate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return biaserr.Validation("required demographic missing", fields...)
		}
		return biaserr.Validation(err.Error())
	}
	return nil
}
