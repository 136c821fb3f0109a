package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// New returns a configured validator that reports fields by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterStructValidation(clientWorkOrderStructValidation, workorders.ClientWorkOrder{})

	return v
}

// clientWorkOrderStructValidation rejects optional dates that are present but blank.
// deletedDate is only checked on deleted records since it is ignored otherwise.
func clientWorkOrderStructValidation(sl validatorv10.StructLevel) {
	rec := sl.Current().Interface().(workorders.ClientWorkOrder)
	if rec.LastUpdateDate != nil && strings.TrimSpace(*rec.LastUpdateDate) == "" {
		sl.ReportError(rec.LastUpdateDate, "lastUpdateDate", "LastUpdateDate", "not_blank", "")
	}
	if rec.IsDeleted && rec.DeletedDate != nil && strings.TrimSpace(*rec.DeletedDate) == "" {
		sl.ReportError(rec.DeletedDate, "deletedDate", "DeletedDate", "not_blank", "")
	}
}

// FieldErrors flattens a validation error into field -> failed tag.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else if err != nil {
		out["error"] = err.Error()
	}
	return out
}

// MissingFields lists the fields that failed a "required" rule.
func MissingFields(err error) []string {
	var fields []string
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			if fe.Tag() == "required" {
				fields = append(fields, fe.Field())
			}
		}
	}
	return fields
}
