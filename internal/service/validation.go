package service

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

// registerDomainValidations installs the enum tags used by request payloads.
func registerDomainValidations(v *validator.Validate) {
	v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.Role(strings.ToUpper(fl.Field().String())).Valid()
	})
	v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return models.NoticePriority(strings.ToUpper(fl.Field().String())).Valid()
	})
	v.RegisterValidation("notice_state", func(fl validator.FieldLevel) bool {
		return models.NoticeState(strings.ToUpper(fl.Field().String())).Valid()
	})
	v.RegisterValidation("cost_cycle", func(fl validator.FieldLevel) bool {
		switch models.CostCycle(strings.ToUpper(fl.Field().String())) {
		case models.CostCycleMonthly, models.CostCycleYearly, models.CostCycleOnce:
			return true
		default:
			return false
		}
	})
}

func newValidator(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	registerDomainValidations(validate)
	return validate
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

func toRoleSet(values []string) models.RoleSet {
	out := make(models.RoleSet, 0, len(values))
	for _, v := range values {
		role := models.Role(strings.ToUpper(strings.TrimSpace(v)))
		if !out.Contains(role) {
			out = append(out, role)
		}
	}
	return out
}
