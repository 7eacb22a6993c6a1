package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/skillsharp/lms/core"
)

var (
	levelTag  = "level"
	levelText = "level must be one of beginner, intermediate, advanced or all"

	lectureTypeTag  = "lecturetype"
	lectureTypeText = "type must be one of video, pdf, quiz, text or file"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(levelTag, core.OneOfValidation(AllLevels...))
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)

	_ = validate.RegisterValidation(lectureTypeTag, core.OneOfValidation(AllLectureTypes...))
	core.RegisterCustomTranslation(validate, translator, lectureTypeTag, lectureTypeText)
}
