package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/pickpack-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// InitValidator initializes the validator with the custom validators used by
// the API layer and registers them with gin's binding engine.
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustom(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustom(v)
		}
	})

	return validate
}

func registerCustom(v *validator.Validate) {
	_ = v.RegisterValidation("order_id", validateOrderID)
	_ = v.RegisterValidation("wave_id", validateWaveID)
	_ = v.RegisterValidation("employee_name", validateEmployeeName)
	_ = v.RegisterValidation("tracking_number", validateTrackingNumber)
	_ = v.RegisterValidation("safe_string", validateSafeString)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// GetValidator returns the singleton validator instance
func GetValidator() *validator.Validate {
	if validate == nil {
		return InitValidator()
	}
	return validate
}

var (
	orderIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{2,63}$`)
	waveIDRegex     = regexp.MustCompile(`^WAVE-[a-zA-Z0-9-]{8,}$`)
	employeeRegex   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9 ._-]{1,63}$`)
	safeStringRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.,!?@#$%&*()+=:;'"\/\[\]{}|~]*$`)
)

func validateOrderID(fl validator.FieldLevel) bool {
	return orderIDRegex.MatchString(fl.Field().String())
}

func validateWaveID(fl validator.FieldLevel) bool {
	return waveIDRegex.MatchString(fl.Field().String())
}

func validateEmployeeName(fl validator.FieldLevel) bool {
	return employeeRegex.MatchString(fl.Field().String())
}

func validateTrackingNumber(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return len(value) >= 8 && len(value) <= 30
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a field map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "order_id":
		return "must be a valid order ID"
	case "wave_id":
		return "must be a valid wave ID (format: WAVE-xxxxxxxx)"
	case "employee_name":
		return "must be a valid employee name"
	case "tracking_number":
		return "must be a valid tracking number (8-30 characters)"
	case "safe_string":
		return "contains invalid characters"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body into obj and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// SanitizeString strips null bytes and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// InputSanitizer sanitizes query parameters before handlers see them
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType rejects mutating requests whose body is not JSON
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" || c.Request.Method == "PUT" || c.Request.Method == "PATCH" {
			contentType := c.GetHeader("Content-Type")
			if contentType == "" || !strings.HasPrefix(contentType, "application/json") {
				if c.Request.ContentLength > 0 {
					AbortWithAppError(c, &errors.AppError{
						Code:       "INVALID_CONTENT_TYPE",
						Message:    "Content-Type must be application/json",
						HTTPStatus: 415,
					})
					return
				}
			}
		}
		c.Next()
	}
}
