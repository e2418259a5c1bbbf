package library

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

var (
	bookStatusTag    = "bookstatus"
	memberStatusTag  = "memberstatus"
	borrowStatusTag  = "borrowstatus"
	invalidStatusTxt = "invalid status"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(bookStatusTag, func(fl validator.FieldLevel) bool {
		return BookStatus(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, bookStatusTag, invalidStatusTxt)

	_ = validate.RegisterValidation(memberStatusTag, func(fl validator.FieldLevel) bool {
		return MemberStatus(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, memberStatusTag, invalidStatusTxt)

	_ = validate.RegisterValidation(borrowStatusTag, func(fl validator.FieldLevel) bool {
		return BorrowStatus(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, borrowStatusTag, invalidStatusTxt)
}
