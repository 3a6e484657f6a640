package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(jsonName)
	v.RegisterStructValidation(processPaymentStructValidation, ProcessPaymentRequest{})
	return v
}

// processPaymentStructValidation caps the number of lines in one checkout.
func processPaymentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ProcessPaymentRequest)

	if len(req.Cart) > MaxCartLines {
		sl.ReportError(req.Cart, "cart", "Cart", "max_cart_lines", fmt.Sprintf("%d", MaxCartLines))
	}
}

// jsonName reports fields by their JSON name so errors match the request body.
func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
