// Package artifact issues and verifies short-lived single-use codes (OTPs,
// coupons) bound to an owner and stored with TTL in the keyed expiring store.
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
)

// Reason is the typed outcome of an issue or verify call. These are expected
// results of normal operation, not errors.
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonNotFoundOrExpired Reason = "not_found_or_expired"
	ReasonAlreadyUsed       Reason = "already_used"
	ReasonOwnerMismatch     Reason = "owner_mismatch"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonStoreFailure      Reason = "store_failure"
)

// Artifact is the stored representation of an issued code.
type Artifact struct {
	Code      string    `json:"code"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// IssueSpec describes one issuance.
type IssueSpec struct {
	// Purpose namespaces the stored key ("otp", "coupon").
	Purpose string
	// Owner binds the code to a phone number or user id.
	Owner string
	// Generate produces the code.
	Generate Generator
	// TTL bounds the code's validity.
	TTL time.Duration
	// OwnerInKey includes the owner in the stored key
	// (otp:<phone>:<code> vs coupon:<code>).
	OwnerInKey bool
	// ReverseLookup additionally stores user_<purpose>:<owner> → code so the
	// owner's current code can be found without knowing it.
	ReverseLookup bool
}

// VerifySpec describes one verification.
type VerifySpec struct {
	Purpose    string
	Owner      string
	Code       string
	OwnerInKey bool
	// SingleUse consumes the artifact on successful verification. Leave it
	// unset for artifacts that stay valid across repeated checks.
	SingleUse bool
}

// Config holds issuer configuration.
type Config struct {
	// RateCap is the maximum issues per owner within one window.
	RateCap int `yaml:"rate_cap" mapstructure:"rate_cap"`
	// RateWindow is the rate limiting window (e.g. "1h").
	RateWindow string `yaml:"rate_window" mapstructure:"rate_window"`
	// UsedGraceTTL is how long a used artifact is retained for audit before
	// the store drops it (e.g. "60s").
	UsedGraceTTL string `yaml:"used_grace_ttl" mapstructure:"used_grace_ttl"`
	// OTPTTL bounds OTP validity (e.g. "5m").
	OTPTTL string `yaml:"otp_ttl" mapstructure:"otp_ttl"`
	// CouponTTL bounds coupon validity (e.g. "5m").
	CouponTTL string `yaml:"coupon_ttl" mapstructure:"coupon_ttl"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.RateCap <= 0 {
		c.RateCap = 3
	}
	if c.RateWindow == "" {
		c.RateWindow = "1h"
	}
	if c.UsedGraceTTL == "" {
		c.UsedGraceTTL = "60s"
	}
	if c.OTPTTL == "" {
		c.OTPTTL = "5m"
	}
	if c.CouponTTL == "" {
		c.CouponTTL = "5m"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"rate_window":    c.RateWindow,
		"used_grace_ttl": c.UsedGraceTTL,
		"otp_ttl":        c.OTPTTL,
		"coupon_ttl":     c.CouponTTL,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("artifact.%s: %w", name, err)
		}
	}
	return nil
}

// Issuer issues and verifies ephemeral artifacts against the store.
type Issuer struct {
	store     kvstore.Store
	log       *logger.Logger
	rateCap   int64
	window    time.Duration
	usedGrace time.Duration
	otpTTL    time.Duration
	couponTTL time.Duration
}

// NewIssuer creates an issuer over the given store.
func NewIssuer(store kvstore.Store, cfg Config, log *logger.Logger) *Issuer {
	cfg.ApplyDefaults()
	window, _ := time.ParseDuration(cfg.RateWindow)
	usedGrace, _ := time.ParseDuration(cfg.UsedGraceTTL)
	otpTTL, _ := time.ParseDuration(cfg.OTPTTL)
	couponTTL, _ := time.ParseDuration(cfg.CouponTTL)
	return &Issuer{
		store:     store,
		log:       log.WithComponent("issuer"),
		rateCap:   int64(cfg.RateCap),
		window:    window,
		usedGrace: usedGrace,
		otpTTL:    otpTTL,
		couponTTL: couponTTL,
	}
}

func artifactKey(purpose, owner, code string, ownerInKey bool) string {
	if ownerInKey {
		return purpose + ":" + owner + ":" + code
	}
	return purpose + ":" + code
}

func reverseKey(purpose, owner string) string {
	return "user_" + purpose + ":" + owner
}

func rateKey(owner string) string {
	return "rate:" + owner
}

// Issue generates a code for the owner and stores it with the requested TTL.
// Before issuing, the per-owner rate counter is consulted: once the cap is
// reached within the current window the call is rejected with
// ReasonRateLimited. The counter window starts at the first issue and the
// count resets when the window's TTL elapses.
func (i *Issuer) Issue(ctx context.Context, spec IssueSpec) (Artifact, Reason) {
	count := i.store.Increment(ctx, rateKey(spec.Owner), 1)
	if count == 1 {
		i.store.Expire(ctx, rateKey(spec.Owner), i.window)
	}
	if count > i.rateCap {
		i.log.Warn("Issue rate limited", logger.Fields("owner", spec.Owner, "count", count))
		return Artifact{}, ReasonRateLimited
	}

	now := time.Now().UTC()
	art := Artifact{
		Code:      spec.Generate(),
		Owner:     spec.Owner,
		CreatedAt: now,
		ExpiresAt: now.Add(spec.TTL),
	}

	key := artifactKey(spec.Purpose, spec.Owner, art.Code, spec.OwnerInKey)
	if !i.store.Set(ctx, key, art, spec.TTL) {
		return Artifact{}, ReasonStoreFailure
	}
	if spec.ReverseLookup {
		i.store.Set(ctx, reverseKey(spec.Purpose, spec.Owner), map[string]any{
			"code":       art.Code,
			"expires_at": art.ExpiresAt,
		}, spec.TTL)
	}

	i.log.Info("Artifact issued", logger.Fields(
		"purpose", spec.Purpose,
		"owner", spec.Owner,
		"expires_at", art.ExpiresAt.Format(time.RFC3339),
	))
	return art, ReasonOK
}

// Verify checks a code for the owner. The owner check precedes the used
// flag: a code presented by the wrong owner always reports a mismatch, even
// after the rightful owner redeemed it.
//
// For single-use specs the used flag transitions false→true exactly once:
// the first successful verification marks the artifact used and re-persists
// it with a short residual TTL for audit, so any later attempt fails with
// ReasonAlreadyUsed until the store drops it. Reusable specs leave the
// artifact untouched and keep passing until TTL expiry.
func (i *Issuer) Verify(ctx context.Context, spec VerifySpec) (bool, Reason) {
	key := artifactKey(spec.Purpose, spec.Owner, spec.Code, spec.OwnerInKey)

	var art Artifact
	if !i.store.Get(ctx, key, &art) {
		return false, ReasonNotFoundOrExpired
	}
	if art.Owner != spec.Owner {
		return false, ReasonOwnerMismatch
	}
	if art.Used {
		return false, ReasonAlreadyUsed
	}
	// TTL expiry should make this unreachable; kept as a guard for fallback
	// stores where the janitor has not swept yet.
	if time.Now().After(art.ExpiresAt) {
		return false, ReasonNotFoundOrExpired
	}

	if spec.SingleUse {
		art.Used = true
		i.store.Set(ctx, key, art, i.usedGrace)
	}

	i.log.Info("Artifact verified", logger.Fields("purpose", spec.Purpose, "owner", spec.Owner))
	return true, ReasonOK
}

// Cleanup removes artifacts under the purpose namespace that are expired or
// used. With TTL-enforcing backends this is a no-op; it exists for fallback
// stores and manual sweeps.
func (i *Issuer) Cleanup(ctx context.Context, purpose string) int {
	removed := 0
	for _, key := range i.store.Keys(ctx, purpose+":*") {
		var art Artifact
		if !i.store.Get(ctx, key, &art) {
			continue
		}
		if art.Used || time.Now().After(art.ExpiresAt) {
			if i.store.Delete(ctx, key) {
				removed++
			}
		}
	}
	return removed
}
