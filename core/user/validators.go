package user

import (
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)
}

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	known := make([]string, len(AllRoles))
	copy(known, AllRoles)
	sort.Strings(known)
	for _, role := range roles {
		idx := sort.SearchStrings(known, role)
		if idx >= len(known) || known[idx] != role {
			return false
		}
	}
	return true
}
