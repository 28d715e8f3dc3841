package middleware

import (
	"net/http"

	"github.com/MrEthical07/formauth"
)

// FailureFunc renders an authentication failure.
type FailureFunc func(w http.ResponseWriter, r *http.Request, f *formauth.Failure)

// ChallengeFilter checks the verification code of form logins before any
// credential is looked at. It only acts on POST to Routes.LoginProcessingURL
// and passes everything through when the challenge is disabled.
func ChallengeFilter(engine *formauth.Engine, onFailure FailureFunc) func(http.Handler) http.Handler {
	cfg := engine.Config()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != cfg.Routes.LoginProcessingURL || !engine.ChallengeEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := CookieValue(r, cfg.Session.CookieName)
			presented := r.PostFormValue(cfg.Challenge.ParamName)

			if f := engine.VerifyChallenge(r.Context(), sessionID, presented); f != nil {
				onFailure(w, r, f)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
