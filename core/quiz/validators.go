package quiz

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/skillsharp/lms/core"
)

var (
	correctIdxTag  = "correctidx"
	correctIdxText = "correct_index must point to one of the options"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(questionStructValidation, Question{})
	core.RegisterCustomTranslation(validate, translator, correctIdxTag, correctIdxText)
}

func questionStructValidation(sl validator.StructLevel) {
	qn := sl.Current().Interface().(Question)
	if qn.CorrectIndex < 0 || qn.CorrectIndex >= len(qn.Options) {
		sl.ReportError(qn.CorrectIndex, "correct_index", "CorrectIndex", correctIdxTag, "")
	}
}
