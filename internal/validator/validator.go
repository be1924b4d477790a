package validator

import (
	"reflect"
	"strings"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator with the import-specific tags registered
type Validator struct {
	structValidator *validator.Validate
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator: structValidator,
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate checks struct tags and returns apperrors.ValidationErrors keyed by
// json field name, which the handlers render as a 400 body.
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if errs := apperrors.ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// Engine exposes the underlying validator, e.g. for gin's binding
func (v *Validator) Engine() *validator.Validate {
	return v.structValidator
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("content_type", validateContentType)
	validate.RegisterValidation("difficulty", validateDifficulty)
	validate.RegisterValidation("study_level", validateStudyLevel)
	validate.RegisterValidation("import_format", validateImportFormat)
	validate.RegisterValidation("category_action", validateCategoryAction)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateContentType(fl validator.FieldLevel) bool {
	return models.ContentType(fl.Field().String()).IsValid()
}

// Empty difficulty and level are accepted, required decides presence
func validateDifficulty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || models.DifficultyLevel(value).IsValid()
}

func validateStudyLevel(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || models.StudyLevel(value).IsValid()
}

func validateImportFormat(fl validator.FieldLevel) bool {
	return models.ImportFormat(fl.Field().String()).IsValid()
}

func validateCategoryAction(fl validator.FieldLevel) bool {
	return models.MappingAction(fl.Field().String()).IsValid()
}
