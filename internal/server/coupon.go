package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/signalhub/internal/artifact"
)

type couponRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	CouponRequest bool   `json:"coupon_request"`
}

type couponResponse struct {
	CouponCode string    `json:"coupon_code"`
	ExpiresAt  time.Time `json:"expires_at"`
	UserID     string    `json:"user_id"`
}

type couponValidationRequest struct {
	CouponCode string `json:"coupon_code" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
}

type couponValidationResponse struct {
	IsValid bool `json:"is_valid"`
}

// handleRequestCoupon issues a short-lived coupon code for a user.
func (s *Server) handleRequestCoupon(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "user_id is required")
		return
	}
	if !req.CouponRequest {
		respondInvalid(c, "coupon_request must be true")
		return
	}

	art, reason := s.deps.Issuer.IssueCoupon(c.Request.Context(), req.UserID)
	switch reason {
	case artifact.ReasonOK:
	case artifact.ReasonRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status":  "error",
			"message": "Too many coupon requests. Please try again later.",
		})
		return
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "Could not generate coupon. Please try again.",
		})
		return
	}

	c.JSON(http.StatusOK, couponResponse{
		CouponCode: art.Code,
		ExpiresAt:  art.ExpiresAt,
		UserID:     req.UserID,
	})
}

// handleValidateCoupon checks a coupon for a user. Validation is a plain
// boolean; the caller learns nothing about why a code was rejected.
func (s *Server) handleValidateCoupon(c *gin.Context) {
	var req couponValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "coupon_code and user_id are required")
		return
	}

	ok, _ := s.deps.Issuer.VerifyCoupon(c.Request.Context(), req.UserID, req.CouponCode)
	c.JSON(http.StatusOK, couponValidationResponse{IsValid: ok})
}
