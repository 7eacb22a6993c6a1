package payment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/skillsharp/lms/core"
)

var (
	providerTag  = "provider"
	providerText = "provider must be one of stripe or razorpay"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(providerTag, core.OneOfValidation(AllProviders...))
	core.RegisterCustomTranslation(validate, translator, providerTag, providerText)
}
