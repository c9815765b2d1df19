// Package validation checks configuration structs and mapped domain objects.
//
// Struct tag validation uses go-playground/validator:
//
//	type Book struct {
//	    Title string `json:"title" validate:"required"`
//	}
//	err := validation.Validate(book)
//
// Programmatic validation collects field errors for config structs:
//
//	err := validation.New().Min("runner.wifi", c.WiFi, 1).Validate()
//
// Both return *errors.AppError with code INVALID_PAYLOAD and a "fields" detail.
package validation
