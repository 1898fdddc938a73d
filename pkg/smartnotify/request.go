package smartnotify

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Request is a notification submitted to the engine.
type Request struct {
	Type            string                 `json:"type" validate:"required,max=64"`
	RecipientUserID string                 `json:"recipient_user_id" validate:"required,max=128"`
	Title           string                 `json:"title" validate:"required,max=255"`
	Message         string                 `json:"message" validate:"max=4000"`
	Priority        notifications.Priority `json:"priority,omitempty" validate:"omitempty,priority"`
	Context         map[string]any         `json:"context,omitempty"`
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("priority", validatePriority)
	// Report json names so API clients see the fields they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validatePriority(fl validator.FieldLevel) bool {
	return notifications.Priority(fl.Field().String()).Valid()
}
