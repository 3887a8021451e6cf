package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/pkg/utils"
)

var (
	doiPattern     = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	pmidPattern    = regexp.MustCompile(`^\d{1,9}$`)
	wbPaperPattern = regexp.MustCompile(`^WBPaper\d{8}$`)
)

// Validator checks request structs and the field values of entities before
// they are written.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := &Validator{validate: validator.New()}
	v.registerCustomValidators()
	return v
}

// ValidateStruct runs the struct tags of s.
func (v *Validator) ValidateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return validationError("request validation failed", err)
	}
	return nil
}

// ValidateDocumentSpec checks the formats of the identifying fields of spec.
func (v *Validator) ValidateDocumentSpec(spec *models.DocumentSpec) error {
	return v.ValidateStruct(spec)
}

func (v *Validator) ValidateCellSpec(spec *models.CellSpec) error {
	return v.ValidateStruct(spec)
}

func (v *Validator) ValidateSearchQuery(q *models.SearchQuery) error {
	return v.ValidateStruct(q)
}

// ValidateEntity checks the values an entity is about to be stored with.
// Only document identifier fields have a required format.
func (v *Validator) ValidateEntity(e models.Entity) error {
	doc, ok := e.(*models.Document)
	if !ok {
		return nil
	}

	checks := []struct {
		field string
		valid func(string) bool
	}{
		{models.FieldDOI, isDOI},
		{models.FieldPMID, pmidPattern.MatchString},
		{models.FieldWBID, wbPaperPattern.MatchString},
	}
	for _, c := range checks {
		for _, value := range doc.Property(c.field).Strings() {
			if !c.valid(value) {
				return utils.NewAppError(utils.CodeValidation,
					fmt.Sprintf("invalid %s %q", c.field, value), utils.ErrValidation).
					WithDetail("field", c.field).
					WithDetail("value", value)
			}
		}
	}
	return nil
}

func (v *Validator) registerCustomValidators() {
	v.validate.RegisterValidation("doi", func(fl validator.FieldLevel) bool {
		return isDOI(fl.Field().String())
	})
	v.validate.RegisterValidation("pmid", func(fl validator.FieldLevel) bool {
		return pmidPattern.MatchString(fl.Field().String())
	})
	v.validate.RegisterValidation("wbpaper", func(fl validator.FieldLevel) bool {
		return wbPaperPattern.MatchString(fl.Field().String())
	})
}

// isDOI accepts a bare DOI or a doi.org URL.
func isDOI(s string) bool {
	if bare, ok := models.DOIURLToDOI(s); ok {
		s = bare
	}
	return doiPattern.MatchString(strings.TrimSpace(s))
}

func validationError(message string, err error) error {
	appErr := utils.NewAppError(utils.CodeValidation, message, errors.Join(err, utils.ErrValidation))

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		appErr.WithDetail("fields", fields)
	}
	return appErr
}
