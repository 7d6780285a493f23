package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"opsfloww.io/internal/auth"
)

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	Role            string `json:"role"`
	Department      string `json:"department"`
	Position        string `json:"position"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updateMeRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Department      *string `json:"department"`
	Position        *string `json:"position"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"passwordConfirm"`
}

type settingsRequest struct {
	Notifications *auth.NotificationSettings `json:"notifications"`
	Appearance    *struct {
		Theme       *string `json:"theme"`
		CompactMode *bool   `json:"compactMode"`
	} `json:"appearance"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	User         *auth.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

func (a *API) sendSession(w http.ResponseWriter, code int, s *auth.Session) {
	a.setAccessCookie(w, s.Access)
	writeSuccess(w, code, sessionResponse{
		User:         s.User,
		AccessToken:  s.Access.Value,
		RefreshToken: s.Refresh.Value,
	})
}

func currentUser(r *http.Request) *auth.User {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	return p.User
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := a.auth.SignUp(r.Context(), auth.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Role:            auth.Role(strings.TrimSpace(req.Role)),
		Department:      req.Department,
		Position:        req.Position,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "auth.signup", map[string]any{
		"user_id": sess.User.ID,
		"role":    string(sess.User.Role),
	})
	a.sendSession(w, http.StatusCreated, sess)
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := a.auth.SignIn(r.Context(), req.Email, req.Password, req.Code)
	if err != nil {
		a.audit.Record(r.Context(), "auth.signin.failed", map[string]any{
			"email":  auth.NormalizeEmail(req.Email),
			"reason": auth.Message(err, "error"),
		})
		writeServiceError(w, r, err)
		return
	}
	setRequestUser(r.Context(), sess.User.ID)
	a.audit.Record(r.Context(), "auth.signin", map[string]any{"user_id": sess.User.ID})
	a.sendSession(w, http.StatusOK, sess)
}

// handleLogout revokes the presented token, if any, and clears the cookie.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := tokenFromRequest(r); token != "" {
		if err := a.auth.Blacklist(r.Context(), token); err != nil {
			writeServiceError(w, r, err)
			return
		}
		a.audit.Record(r.Context(), "auth.logout", nil)
	}
	a.clearAccessCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "If that email is registered, a reset link has been sent")
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	token := mux.Vars(r)["token"]
	if token == "" {
		token = strings.TrimSpace(req.Token)
	}
	sess, err := a.auth.ResetPassword(r.Context(), token, req.Password, req.PasswordConfirm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "auth.password.reset", map[string]any{"user_id": sess.User.ID})
	a.sendSession(w, http.StatusOK, sess)
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	u, err := a.auth.VerifyEmail(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "auth.email.verified", map[string]any{"user_id": u.ID})
	writeSuccess(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	access, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.setAccessCookie(w, access)
	writeSuccess(w, http.StatusOK, map[string]any{
		"accessToken": access.Value,
		"expiresAt":   access.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"user": currentUser(r)})
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Password != "" || req.PasswordConfirm != "" {
		writeError(w, r, http.StatusBadRequest, "This route is not for password updates. Please use /update-password.")
		return
	}
	u, err := a.auth.UpdateProfile(r.Context(), currentUser(r), auth.ProfileUpdate{
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Position:   req.Position,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := a.auth.ChangePassword(r.Context(), currentUser(r), req.CurrentPassword, req.Password, req.PasswordConfirm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "auth.password.changed", map[string]any{"user_id": sess.User.ID})
	a.sendSession(w, http.StatusOK, sess)
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"settings": currentUser(r).Settings})
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	patch := auth.SettingsPatch{Notifications: req.Notifications}
	if req.Appearance != nil {
		patch.Theme = req.Appearance.Theme
		patch.CompactMode = req.Appearance.CompactMode
	}
	u, err := a.auth.UpdateSettings(r.Context(), currentUser(r), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"settings": u.Settings})
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.ResendVerification(r.Context(), currentUser(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification email sent")
}

func (a *API) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := a.auth.SetupTwoFactor(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, setup)
}

func (a *API) handleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	u := currentUser(r)
	if err := a.auth.EnableTwoFactor(r.Context(), u, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "auth.2fa.enabled", map[string]any{"user_id": u.ID})
	writeMessage(w, http.StatusOK, "Two-factor authentication enabled")
}

func (a *API) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	u := currentUser(r)
	if err := a.auth.DisableTwoFactor(r.Context(), u, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "auth.2fa.disabled", map[string]any{"user_id": u.ID})
	writeMessage(w, http.StatusOK, "Two-factor authentication disabled")
}
