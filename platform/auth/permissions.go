package auth

import (
	"fmt"
	"net/http"

	"form_platform/platform/schema"

	"gorm.io/gorm"
)

// CanRead reports whether the user may view and fill the template: it is
// public, or the user is the owner, an admin, or on the permission list. The
// template must be freshly loaded with its Permissions association; access is
// never evaluated against cached state.
func CanRead(user schema.User, template *schema.Template) bool {
	if template.IsPublic || user.IsAdmin || template.UserId == user.Id {
		return true
	}
	for _, perm := range template.Permissions {
		if perm.UserId == user.Id {
			return true
		}
	}
	return false
}

// CanWrite reports whether the user may update or delete the template. The
// permission list grants read/fill access only, never write.
func CanWrite(user schema.User, template *schema.Template) bool {
	return user.IsAdmin || template.UserId == user.Id
}

// CanViewResults gates access to submitted forms and aggregates. Fillers can
// never see other users' answers, so this matches CanWrite.
func CanViewResults(user schema.User, template *schema.Template) bool {
	return CanWrite(user, template)
}

func AdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
