package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks the per-record field rules declared in struct tags.
// Field names are reported by their JSON name.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidationError holds per-field validation failure messages keyed by
// "<entity>[<index>].<field>".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// Validate checks a catalog before it is written: ids unique and non-empty,
// names present and bounded, ratings within 0..5, popularity non-negative,
// and every program pointing at a known university.
func Validate(doc *Document) error {
	errs := make(map[string]string)

	universityIDs := make(map[string]bool, len(doc.Universities))
	for i, u := range doc.Universities {
		prefix := fmt.Sprintf("universities[%d]", i)
		checkFields(errs, prefix, u)
		checkDuplicate(errs, prefix, u.ID, universityIDs)
	}

	programIDs := make(map[string]bool, len(doc.Programs))
	for i, p := range doc.Programs {
		prefix := fmt.Sprintf("programs[%d]", i)
		checkFields(errs, prefix, p)
		checkDuplicate(errs, prefix, p.ID, programIDs)
		if p.UniversityID != "" && !universityIDs[p.UniversityID] {
			errs[prefix+".universityId"] = fmt.Sprintf("unknown university %q", p.UniversityID)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkFields(errs map[string]string, prefix string, record any) {
	err := validate.Struct(record)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs[prefix] = err.Error()
		return
	}
	for _, fe := range fieldErrs {
		errs[prefix+"."+fe.Field()] = fieldMessage(fe)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte", "lte":
		if fe.Field() == "rating" {
			return "must be between 0 and 5"
		}
		return "must not be negative"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func checkDuplicate(errs map[string]string, prefix, id string, seen map[string]bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if seen[id] {
		errs[prefix+".id"] = fmt.Sprintf("duplicate id %q", id)
		return
	}
	seen[id] = true
}
