package binder

import (
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/go-playground/validator/v10"
)

// providerValidator ensures the value is a known provider name or the empty
// string. The empty string is allowed so the validator can be used on
// optional filters; add a `required` tag when the field is mandatory.
func providerValidator(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", models.ProviderISFDB, models.ProviderOpenLibrary, models.ProviderGoogleBooks, models.ProviderGoodreads:
		return true
	}
	return false
}
