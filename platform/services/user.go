package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"form_platform/platform/auth"
	"form_platform/platform/schema"
	"form_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.userAuth.AllowDirectSignup() {
			r.Post("/signup", s.Signup)
		}

		r.Get("/login", s.LoginWithEmail)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/list", s.List)
		r.Get("/info", s.Info)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Post("/{user_id}/flags", s.SetFlags)

		r.Delete("/{user_id}", s.DeleteUser)
	})

	return r
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !s.userAuth.AllowDirectSignup() {
		http.Error(w, "direct signup is not supported for this identity provider", http.StatusBadRequest)
		return
	}

	userId, err := s.userAuth.CreateUser(params.Username, params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrUsernameAlreadyInUse):
			responseCode = http.StatusConflict
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	res := signupResponse{UserId: userId}
	utils.WriteJsonResponse(w, res)
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrUserBlocked):
			responseCode = http.StatusForbidden
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	res := loginResponse{UserId: login.UserId, AccessToken: login.AccessToken}
	utils.WriteJsonResponse(w, res)
}

type setFlagsRequest struct {
	// Flags left nil are unchanged.
	IsAdmin   *bool `json:"is_admin"`
	IsBlocked *bool `json:"is_blocked"`

	// The user version the caller last saw. The update is rejected with a
	// conflict if the stored version no longer matches, so concurrent admin
	// panels cannot silently overwrite each other.
	ExpectedVersion int `json:"expected_version"`
}

// SetFlags updates the admin/blocked flags of a user with a conditional
// update on the version column. Exactly one of three outcomes is possible:
// the row matched and was updated, the user exists at a different version
// (conflict), or the user does not exist.
func (s *UserService) SetFlags(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setFlagsRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.IsAdmin == nil && params.IsBlocked == nil {
		http.Error(w, "at least one of 'is_admin' or 'is_blocked' must be provided", http.StatusUnprocessableEntity)
		return
	}

	updates := map[string]interface{}{
		"version": gorm.Expr("version + 1"),
	}
	if params.IsAdmin != nil {
		updates["is_admin"] = *params.IsAdmin
	}
	if params.IsBlocked != nil {
		updates["is_blocked"] = *params.IsBlocked
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.User{}).
			Where("id = ? AND version = ?", userId, params.ExpectedVersion).
			Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating user flags", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result.RowsAffected == 0 {
			if err := checkUserExists(txn, userId); err != nil {
				return err
			}
			return CodedError(
				fmt.Errorf("user %v was modified since version %d was read", userId, params.ExpectedVersion),
				http.StatusConflict,
			)
		}

		// Removing admin from the last admin would lock everyone out of the
		// admin endpoints.
		if params.IsAdmin != nil && !*params.IsAdmin {
			var admins int64
			result := txn.Model(&schema.User{}).Where("is_admin = ?", true).Count(&admins)
			if result.Error != nil {
				slog.Error("sql error counting existing admins", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if admins == 0 {
				return CodedError(fmt.Errorf("cannot demote admin %v since there would be no admins left", userId), http.StatusUnprocessableEntity)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user flags: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("updated user flags", "user_id", userId)

	utils.WriteSuccess(w)
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if caller.Id == userId {
		http.Error(w, "admins cannot delete their own account", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		// Owned templates, submissions, comments and likes are removed by the
		// cascading constraints.
		result := txn.Delete(&schema.User{Id: userId})
		if result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type UserInfo struct {
	Id       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`

	Admin   bool `json:"admin"`
	Blocked bool `json:"blocked"`

	Version int `json:"version"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:       user.Id,
		Username: user.Username,
		Email:    user.Email,
		Admin:    user.IsAdmin,
		Blocked:  user.IsBlocked,
		Version:  user.Version,
	}
}

// List is available to all authenticated users so that template owners can
// pick users for permission lists.
func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.Order("username ASC").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := convertToUserInfo(&user)
	utils.WriteJsonResponse(w, info)
}
