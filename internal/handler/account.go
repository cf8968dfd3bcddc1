package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/devaloi/roomrelay/internal/auth"
	"github.com/devaloi/roomrelay/internal/middleware"
	"github.com/devaloi/roomrelay/internal/store"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	fullNamePattern = regexp.MustCompile(`^[a-zA-Z\s\-'.]+$`)
)

const (
	msgFieldsRequired   = "All fields are required"
	msgInvalidInput     = "Invalid input format"
	msgPasswordMismatch = "Passwords do not match"
	msgFullNameShort    = "Full name must be at least 2 characters"
	msgUsernameShort    = "Username must be at least 3 characters"
	msgPasswordShort    = "Password must be at least 6 characters"
	msgUsernameChars    = "Username can only contain letters, numbers, underscores, and hyphens"
	msgFullNameChars    = "Full name can only contain letters, spaces, hyphens, apostrophes, and periods"
	msgUsernameTaken    = "Username already exists"
	msgBadCredentials   = "Invalid username or password"
	msgUserNotFound     = "User not found"
	msgInternal         = "Internal server error"
)

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "username", usernamePattern)
	mustRegister(v, "fullname", fullNamePattern)
	return v
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

type signupRequest struct {
	FullName        string `json:"fullName" validate:"required,min=2,fullname"`
	Username        string `json:"username" validate:"required,min=3,username"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateRequest struct {
	FullName        string `json:"fullName" validate:"omitempty,min=2,fullname"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userView struct {
	FullName  string    `json:"fullName"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Token   string   `json:"token,omitempty"`
	User    userView `json:"user"`
}

// rule maps one failed validation tag on a field to its message.
type rule struct {
	field, tag, msg string
}

// signupRules orders validation failures the way they are reported: the
// first rule that fails wins.
var signupRules = []rule{
	{"ConfirmPassword", "eqfield", msgPasswordMismatch},
	{"FullName", "min", msgFullNameShort},
	{"Username", "min", msgUsernameShort},
	{"Password", "min", msgPasswordShort},
	{"Username", "username", msgUsernameChars},
	{"FullName", "fullname", msgFullNameChars},
}

var updateRules = []rule{
	{"FullName", "min", msgFullNameShort},
	{"FullName", "fullname", msgFullNameChars},
}

// Accounts serves the account endpoints on top of the user directory.
type Accounts struct {
	users    store.Users
	tokens   *auth.Tokens
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

// NewAccounts creates the account handlers.
func NewAccounts(users store.Users, tokens *auth.Tokens, log *slog.Logger) *Accounts {
	return &Accounts{
		users:    users,
		tokens:   tokens,
		validate: newValidator(),
		log:      log,
		now:      time.Now,
	}
}

// Signup creates an account and returns a token for it.
func (a *Accounts) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	req.ConfirmPassword = strings.TrimSpace(req.ConfirmPassword)

	if msg := firstFailure(a.validate.Struct(req), signupRules, msgFieldsRequired); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	if _, err := a.users.FindUser(ctx, req.Username); err == nil {
		a.log.Info("signup rejected", "username", req.Username, "reason", "exists")
		writeError(w, http.StatusBadRequest, msgUsernameTaken)
		return
	} else if !errors.Is(err, store.ErrUserNotFound) {
		a.internal(w, "signup lookup", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.internal(w, "hash password", err)
		return
	}
	u := store.User{
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: hash,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			writeError(w, http.StatusBadRequest, msgUsernameTaken)
			return
		}
		a.internal(w, "create user", err)
		return
	}

	a.log.Info("user created", "username", u.Username)
	a.respond(w, u, "Account created successfully")
}

// Login verifies credentials and returns a fresh token.
func (a *Accounts) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	u, err := a.users.FindUser(r.Context(), req.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		a.log.Info("login rejected", "username", req.Username, "reason", "unknown user")
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}
	if err != nil {
		a.internal(w, "login lookup", err)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		a.log.Info("login rejected", "username", req.Username, "reason", "bad password")
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	a.log.Info("user logged in", "username", u.Username)
	a.respond(w, u, "")
}

// VerifyToken returns the account behind a valid bearer token.
// Must be wrapped in middleware.RequireToken.
func (a *Accounts) VerifyToken(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: view(u)})
}

// UpdateAccount changes the full name and/or password of the token's
// account and re-issues the token. Must be wrapped in middleware.RequireToken.
func (a *Accounts) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)

	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	if msg := firstFailure(a.validate.Struct(req), updateRules, msgInvalidInput); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var upd store.UserUpdate
	if req.FullName != "" {
		upd.FullName = &req.FullName
	}
	if req.NewPassword != "" {
		if req.CurrentPassword == "" {
			writeError(w, http.StatusBadRequest, "Current password is required to change password")
			return
		}
		if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
			writeError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		if len(req.NewPassword) < 6 {
			writeError(w, http.StatusBadRequest, "New password must be at least 6 characters")
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			a.internal(w, "hash password", err)
			return
		}
		upd.PasswordHash = &hash
	}

	updated, err := a.users.UpdateUser(r.Context(), u.Username, upd)
	if err != nil {
		a.internal(w, "update user", err)
		return
	}

	a.log.Info("user updated", "username", updated.Username)
	a.respond(w, updated, "Account updated successfully")
}

func (a *Accounts) currentUser(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return store.User{}, false
	}
	u, err := a.users.FindUser(r.Context(), claims.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return store.User{}, false
	}
	if err != nil {
		a.internal(w, "find user", err)
		return store.User{}, false
	}
	return u, true
}

func (a *Accounts) respond(w http.ResponseWriter, u store.User, msg string) {
	v := view(u)
	token, err := a.tokens.Issue(v.Username, v.FullName, v.CreatedAt)
	if err != nil {
		a.internal(w, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: msg,
		Token:   token,
		User:    v,
	})
}

func (a *Accounts) internal(w http.ResponseWriter, op string, err error) {
	a.log.Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}

func view(u store.User) userView {
	name := u.FullName
	if name == "" {
		name = u.Username
	}
	return userView{FullName: name, Username: u.Username, CreatedAt: u.CreatedAt}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidInput)
		return false
	}
	return true
}

// firstFailure maps a validation error onto the message of the first
// matching rule. Any missing required field reports required.
func firstFailure(err error, rules []rule, fallback string) string {
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fallback
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return msgFieldsRequired
		}
	}
	for _, rule := range rules {
		for _, fe := range verrs {
			if fe.StructField() == rule.field && fe.Tag() == rule.tag {
				return rule.msg
			}
		}
	}
	return fallback
}
