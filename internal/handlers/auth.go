package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pathxpert/server/internal/auth"
	"github.com/pathxpert/server/internal/delivery"
	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/internal/otp"
	"github.com/pathxpert/server/internal/services"
	appErrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/response"
)

// AuthHandler exposes registration, login and the OTP / credential-reset flows.
type AuthHandler struct {
	users *services.UserService
	jwt   *auth.JWTService
	otp   *otp.Service
	reset *services.PasswordResetService
}

// NewAuthHandler wires the auth endpoints to their services.
func NewAuthHandler(users *services.UserService, jwt *auth.JWTService, otpService *otp.Service, reset *services.PasswordResetService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, otp: otpService, reset: reset}
}

type registerRequest struct {
	Username         string `json:"username" validate:"required,min=3,max=40"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=6"`
	Mobile           string `json:"mobile" validate:"omitempty,min=7,max=20"`
	DisplayName      string `json:"display_name" validate:"omitempty,max=100"`
	EmergencyContact string `json:"emergency_contact" validate:"omitempty,max=100"`
}

// Register creates a local account and returns it with a fresh access token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		Mobile:           req.Mobile,
		DisplayName:      req.DisplayName,
		EmergencyContact: req.EmergencyContact,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": user, "token": token})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates a local account and returns an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user, "token": token})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, user)
}

// Logout acknowledges a client-side logout. Access tokens are stateless, so
// the server has nothing to revoke; the client discards the token.
func (h *AuthHandler) Logout(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"message": "Logged out successfully"})
}

type sendOTPRequest struct {
	Address string `json:"address" validate:"required,min=5,max=254"`
	Purpose string `json:"purpose" validate:"required"`
}

// SendOTP issues a one-time code to the address. The code itself never
// appears in the response.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req sendOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	purpose := models.OTPPurpose(strings.ToLower(strings.TrimSpace(req.Purpose)))
	if !purpose.Valid() {
		response.Error(c, appErrors.NewBadRequest("Unknown OTP purpose"))
		return
	}

	channel := delivery.ChannelFor(req.Address)
	if err := h.otp.Issue(c.Request.Context(), req.Address, purpose, channel); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "OTP sent successfully"})
}

type verifyOTPRequest struct {
	Address string `json:"address" validate:"required"`
	OTP     string `json:"otp" validate:"required,min=4,max=12"`
	Purpose string `json:"purpose" validate:"omitempty"`
}

// VerifyOTP redeems a one-time code. Success consumes the code.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	purpose := models.OTPPurpose(strings.ToLower(strings.TrimSpace(req.Purpose)))
	if purpose == "" {
		purpose = models.PurposeVerification
	}
	if !purpose.Valid() {
		response.Error(c, appErrors.NewBadRequest("Unknown OTP purpose"))
		return
	}

	if err := h.otp.Verify(c.Request.Context(), req.Address, purpose, req.OTP); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "OTP verified successfully"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword mints a reset token and emails the reset link.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.reset.CreateResetToken(c.Request.Context(), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password reset link sent to your email"})
}

type resetWithOTPRequest struct {
	Address  string `json:"address" validate:"required"`
	OTP      string `json:"otp" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// ResetPassword replaces the credential after verifying a password-reset OTP.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetWithOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.reset.ResetWithOTP(c.Request.Context(), req.Address, req.OTP, req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password reset successful"})
}

type resetWithTokenRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

// ResetPasswordWithToken replaces the credential using an emailed reset token.
func (h *AuthHandler) ResetPasswordWithToken(c *gin.Context) {
	var req resetWithTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token := c.Param("token")
	if err := h.reset.ResetWithToken(c.Request.Context(), token, req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password reset successful"})
}
