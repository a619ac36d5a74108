package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/signalhub/internal/artifact"
	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
)

type otpRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

type otpResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	SignalCode string `json:"signal_code,omitempty"`
	Debug      string `json:"debug,omitempty"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	SignalCode  string `json:"signal_code" binding:"required"`
}

type verifyResponse struct {
	Status  string `json:"status"`
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// handleGenerateOTP issues a 5-digit OTP for a phone number and sends it over
// SMS. Issuance is rate limited per phone number.
func (s *Server) handleGenerateOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "phone_number is required")
		return
	}

	art, reason := s.deps.Issuer.IssueOTP(c.Request.Context(), req.PhoneNumber)
	switch reason {
	case artifact.ReasonOK:
	case artifact.ReasonRateLimited:
		c.JSON(http.StatusTooManyRequests, otpResponse{
			Status:  "error",
			Message: "Too many OTP requests. Please try again later.",
		})
		return
	default:
		c.JSON(http.StatusServiceUnavailable, otpResponse{
			Status:  "error",
			Message: "Could not generate OTP. Please try again.",
		})
		return
	}

	if err := s.deps.Notifier.SendTemplate(c.Request.Context(), notify.Message{
		App:          notify.AppDemo,
		Channel:      notify.ChannelSMS,
		TemplateID:   s.deps.Templates.SMSOTP,
		PhoneNumbers: []string{req.PhoneNumber},
		CustomData:   map[string]any{"signal_code": art.Code},
	}); err != nil {
		s.log.Error("Failed to send OTP SMS", logger.ErrorFields("send_otp", err))
	}

	resp := otpResponse{
		Status:  "success",
		Message: fmt.Sprintf("OTP sent to %s", req.PhoneNumber),
	}
	if s.deps.Development {
		resp.SignalCode = art.Code
		resp.Debug = "In production, don't return the code!"
	}
	c.JSON(http.StatusOK, resp)
}

// handleVerifyOTP checks an OTP for a phone number. A code verifies exactly
// once; replays are rejected.
func (s *Server) handleVerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "phone_number and signal_code are required")
		return
	}

	ok, reason := s.deps.Issuer.VerifyOTP(c.Request.Context(), req.PhoneNumber, req.SignalCode)

	resp := verifyResponse{Valid: ok}
	switch {
	case ok:
		resp.Status = "success"
		resp.Message = "Code verified successfully"
	case reason == artifact.ReasonAlreadyUsed:
		resp.Status = "error"
		resp.Message = "Code already used"
	default:
		resp.Status = "error"
		resp.Message = "Invalid code or phone number"
	}
	c.JSON(http.StatusOK, resp)
}

// handleCleanupOTPs manually sweeps expired and used OTPs from the store.
func (s *Server) handleCleanupOTPs(c *gin.Context) {
	count := s.deps.Issuer.Cleanup(c.Request.Context(), artifact.PurposeOTP)
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Cleaned up %d expired OTPs", count),
	})
}
