package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/flicky/spice-storefront/internal/model"
)

var pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// IndianStates is the closed set accepted by the manual address form.
var IndianStates = []string{
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh", "Goa", "Gujarat",
	"Haryana", "Himachal Pradesh", "Jharkhand", "Karnataka", "Kerala", "Madhya Pradesh",
	"Maharashtra", "Manipur", "Meghalaya", "Mizoram", "Nagaland", "Odisha", "Punjab",
	"Rajasthan", "Sikkim", "Tamil Nadu", "Telangana", "Tripura", "Uttar Pradesh",
	"Uttarakhand", "West Bengal", "Delhi",
}

func ValidPincode(s string) bool {
	return pincodeRe.MatchString(s)
}

func ValidIndianState(s string) bool {
	for _, st := range IndianStates {
		if st == s {
			return true
		}
	}
	return false
}

// New returns a validator with the storefront tags registered, for use
// outside gin binding.
func New() *validator.Validate {
	v := validator.New()
	Register(v)
	return v
}

// Register adds the custom tags and reports field names by their json/form tag.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return ValidPincode(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.Category(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("orderstatus", func(fl validator.FieldLevel) bool {
		return model.OrderStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("indianstate", func(fl validator.FieldLevel) bool {
		return ValidIndianState(fl.Field().String())
	})
}

// FirstMessage renders the first violated field as a short sentence.
// Non-validation errors (malformed JSON and the like) get a generic message.
func FirstMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	e := verrs[0]
	return e.Field() + ": " + message(e)
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		if e.Kind() == reflect.String {
			return "must be at least " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "must have at least " + e.Param() + " entries"
		}
		return "must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "must be at most " + e.Param() + " characters"
		}
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "latitude", "longitude":
		return "must be a valid " + e.Tag()
	case "pincode":
		return "Enter valid 6-digit pincode"
	case "category":
		return "must be one of: spices dry-fruits tea"
	case "orderstatus":
		return "is not a valid order status"
	case "indianstate":
		return "is not a recognised state"
	default:
		return "is invalid"
	}
}
