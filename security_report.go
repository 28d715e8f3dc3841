package formauth

import "github.com/MrEthical07/formauth/internal/security"

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport contains the password hashing parameters active in
// the engine.
type PasswordConfigReport = security.PasswordReport

// SecurityReport summarizes the active protections and lists settings that
// weaken them.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:    cfg.Security.ProductionMode,
		CookieSecure:      cfg.Session.CookieSecure,
		CSRFProtection:    cfg.Security.CSRFProtection,
		HideFailureDetail: cfg.Security.HideFailureDetail,
		SessionLifetime:   cfg.Session.Lifetime,
		SlidingExpiration: cfg.Session.SlidingExpiration,
		Password: PasswordConfigReport{
			Algorithm:   cfg.Password.Algorithm,
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			BcryptCost:  cfg.Password.BcryptCost,
		},
		ChallengeEnabled:      cfg.Challenge.Enabled,
		ChallengeTTL:          cfg.Challenge.TTL,
		ChallengeLength:       cfg.Challenge.Length,
		RememberMeEnabled:     cfg.RememberMe.Enabled,
		RememberMeValidity:    cfg.RememberMe.TokenValidity,
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		JWTEnabled:            cfg.JWT.Enabled,
		JWTSigningMethod:      cfg.JWT.SigningMethod,
		AccessTTL:             cfg.JWT.AccessTTL,
	})
}
