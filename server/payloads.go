package server

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
)

// RegisterRequest is the payload for both registration endpoints. AdminCode
// is only looked at by the admin route.
type RegisterRequest struct {
	FirebaseUID string `json:"firebase_uid"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AdminCode   string `json:"admin_code"`
}

// Validate implements the validation.Validatable interface
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirebaseUID,
			validation.Required,
			validation.Length(1, 128),
		),
		validation.Field(&r.Name,
			validation.Required,
			validation.Length(2, 20),
		),
		validation.Field(&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func respondData(c *fiber.Ctx, status int, key string, value any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{key: value},
	})
}

func respondMessage(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

// respondValidation renders the 422 envelope: a top-level error message plus
// per-field error lists.
func respondValidation(c *fiber.Ctx, message string, fields map[string][]string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"errors":  fields,
	})
}

// fieldErrors flattens an ozzo validation.Errors into the wire shape.
func fieldErrors(err error) map[string][]string {
	out := map[string][]string{}

	verrs, ok := err.(validation.Errors)
	if !ok {
		out["base"] = []string{err.Error()}
		return out
	}

	for field, ferr := range verrs {
		out[field] = append(out[field], ferr.Error())
	}
	return out
}
