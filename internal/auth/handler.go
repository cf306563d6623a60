// handler.go -- HTTP handlers for all /auth/* endpoints.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sponsoai/dealdesk/internal/oauth"
	"github.com/sponsoai/dealdesk/internal/store"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store defines database operations needed by auth handlers.
// Satisfied by *store.PostgresStore — defined here (at consumer) per Go convention.
type Store interface {
	// CreateLocalUser inserts a new user with email + hashed password.
	// Email must already be normalized.
	CreateLocalUser(ctx context.Context, id uuid.UUID, name, email, passwordHash string) error

	// GetUserByEmail fetches a user by normalized email.
	// Returns pgx.ErrNoRows if no such user exists.
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)

	// SetUserGoogleID backfills google_id on first Google sign-in.
	SetUserGoogleID(ctx context.Context, id uuid.UUID, googleID string) error
}

// dummyPasswordHash is a precomputed Argon2id hash for timing attack mitigation.
// When a user doesn't exist, verify against this so both paths take equal time (~100ms).
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$YWJjZGVmZ2hpamtsbW5vcA$kC6C6jqLzC0JLlJgXhHbKMhLLpVvLJLLQw/IqT9ZYPU"

// AuthHandler holds dependencies for all /auth/* HTTP handlers and middleware.
// GV is nil when GOOGLE_CLIENT_ID is unset; google-login then 503s.
type AuthHandler struct {
	PS Store
	TI *TokenIssuer
	GV oauth.Verifier
}

// tokenResponse is the success shape shared by all three sign-in paths.
type tokenResponse struct {
	AccessToken string       `json:"accessToken"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Signup handles POST /auth/signup — name + email + password registration.
// Returns 201 with a bearer token, 400 for validation errors, 409 when the
// email is taken, 500 for server errors.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var signupInput struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&signupInput); err != nil {
		logWarn(r, "failed to decode signup input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	if msg := ValidateName(signupInput.Name); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	email := NormalizeEmail(signupInput.Email)
	if msg := ValidateEmail(email); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidatePassword(signupInput.Password); msg != "" {
		BadRequest(w, r, msg)
		return
	}

	hashedPassword, err := HashPassword(signupInput.Password)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	userID, err := uuid.NewV7()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	err = h.PS.CreateLocalUser(r.Context(), userID, signupInput.Name, email, hashedPassword)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			logInfo(r, "signup attempted with existing email")
			Conflict(w, "Email already registered")
			return
		}
		logError(r, "failed to create user", "error", err)
		InternalServerError(w, r, err)
		return
	}

	accessToken, err := h.TI.Issue(userID, email)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user signed up", "user_id", userID)
	WriteJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: accessToken,
		User:        userResponse{ID: userID.String(), Name: signupInput.Name, Email: email},
	})
}

// Signin handles POST /auth/signin — email + password authentication.
// Returns 200 with a bearer token, 401 for bad credentials, 500 for server
// errors. Argon2id dummy-hash equalises timing when the account doesn't
// exist or has no password (google-only account).
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var signinInput struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&signinInput); err != nil {
		logWarn(r, "failed to decode signin input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	// Invalid email or missing password -- both return generic 401 (no enumeration).
	email := NormalizeEmail(signinInput.Email)
	if msg := ValidateEmail(email); msg != "" {
		Unauthorized(w, r, "Invalid email or password")
		return
	}
	if signinInput.Password == "" {
		Unauthorized(w, r, "Invalid email or password")
		return
	}

	user, err := h.PS.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Run dummy hash to equalise timing with found-user path.
			VerifyPassword(signinInput.Password, dummyPasswordHash)
			logInfo(r, "signin attempted with non-existent email")
		} else {
			logError(r, "failed to fetch user for signin", "error", err)
		}
		Unauthorized(w, r, "Invalid email or password")
		return
	}

	if user.PasswordHash == nil {
		// Google-only account; keep the timing profile of a real verify.
		VerifyPassword(signinInput.Password, dummyPasswordHash)
		logInfo(r, "signin attempted against passwordless account", "user_id", user.ID)
		Unauthorized(w, r, "Invalid email or password")
		return
	}

	valid, err := VerifyPassword(signinInput.Password, *user.PasswordHash)
	if err != nil {
		logError(r, "password verification failed", "error", err)
		InternalServerError(w, r, err)
		return
	}
	if !valid {
		logInfo(r, "signin attempted with incorrect password", "user_id", user.ID)
		Unauthorized(w, r, "Invalid email or password")
		return
	}

	accessToken, err := h.TI.Issue(user.ID, user.Email)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user signed in", "user_id", user.ID)
	WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		User:        userResponse{ID: user.ID.String(), Name: user.Name, Email: user.Email},
	})
}

// GoogleLogin handles POST /auth/google-login — exchanges a verified Google
// ID token for a bearer token. Sign-in only: an email that was never
// registered through the web app gets 403, never a silent account.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.GV == nil {
		logWarn(r, "google login attempted but no verifier configured")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"google sign-in not configured"}`))
		return
	}

	var loginInput struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&loginInput); err != nil {
		logWarn(r, "failed to decode google login input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	if len(loginInput.Token) < 10 {
		BadRequest(w, r, "invalid token")
		return
	}

	claims, err := h.GV.Verify(r.Context(), loginInput.Token)
	if err != nil {
		logWarn(r, "google token verification failed", "error", err)
		Unauthorized(w, r, "Invalid Google Token")
		return
	}

	if claims.Email == "" {
		Forbidden(w, "Google account email not available")
		return
	}

	email := NormalizeEmail(claims.Email)
	user, err := h.PS.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logInfo(r, "google login attempted by unregistered email")
		} else {
			logError(r, "failed to fetch user for google login", "error", err)
		}
		Forbidden(w, "First sign up on web app")
		return
	}

	// Best effort: remember the Google subject for this account.
	if claims.Sub != "" {
		if err := h.PS.SetUserGoogleID(r.Context(), user.ID, claims.Sub); err != nil {
			logWarn(r, "failed to backfill google_id", "error", err, "user_id", user.ID)
		}
	}

	accessToken, err := h.TI.Issue(user.ID, user.Email)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	name := user.Name
	if name == "" {
		name = claims.Name
	}

	logInfo(r, "user signed in with google", "user_id", user.ID)
	WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		User:        userResponse{ID: user.ID.String(), Name: name, Email: user.Email},
	})
}
