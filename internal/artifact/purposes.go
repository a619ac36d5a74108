package artifact

import "context"

// Artifact purposes. The purpose prefixes the stored key namespace.
const (
	PurposeOTP    = "otp"
	PurposeCoupon = "coupon"
)

// IssueOTP issues a 5-digit OTP bound to the phone number, stored under
// otp:<phone>:<code>.
func (i *Issuer) IssueOTP(ctx context.Context, phone string) (Artifact, Reason) {
	return i.Issue(ctx, IssueSpec{
		Purpose:    PurposeOTP,
		Owner:      phone,
		Generate:   NumericCode(5),
		TTL:        i.otpTTL,
		OwnerInKey: true,
	})
}

// VerifyOTP checks an OTP for the phone number. OTPs are single-use.
func (i *Issuer) VerifyOTP(ctx context.Context, phone, code string) (bool, Reason) {
	return i.Verify(ctx, VerifySpec{
		Purpose:    PurposeOTP,
		Owner:      phone,
		Code:       code,
		OwnerInKey: true,
		SingleUse:  true,
	})
}

// IssueCoupon issues a 6-character coupon for the user, stored under
// coupon:<code> with a user_coupon:<user_id> reverse entry.
func (i *Issuer) IssueCoupon(ctx context.Context, userID string) (Artifact, Reason) {
	return i.Issue(ctx, IssueSpec{
		Purpose:       PurposeCoupon,
		Owner:         userID,
		Generate:      AlphanumericCode(6),
		TTL:           i.couponTTL,
		ReverseLookup: true,
	})
}

// VerifyCoupon checks a coupon for the user. A coupon issued to another user
// fails with ReasonOwnerMismatch. Validation does not consume the coupon;
// the owner can keep validating it until the TTL expires.
func (i *Issuer) VerifyCoupon(ctx context.Context, userID, code string) (bool, Reason) {
	return i.Verify(ctx, VerifySpec{
		Purpose: PurposeCoupon,
		Owner:   userID,
		Code:    code,
	})
}
