package models

// RegisterRequest is the body of POST /users/register-pending.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest is the body of POST /users/verify.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResendCodeRequest is the body of POST /users/resend-code.
type ResendCodeRequest struct {
	Email string `json:"email"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is what a successful login returns.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	IsAdmin     bool   `json:"is_admin"`
}

// Credential converts the login response into the credential the session holds.
func (r LoginResponse) Credential() Credential {
	return Credential{Token: r.AccessToken, Admin: AdminFlagFromBool(r.IsAdmin)}
}
