package models

// AuthStrategy names how credentials are attached to an outbound request.
type AuthStrategy string

const (
	AuthNone        AuthStrategy = "NONE"
	AuthBearerToken AuthStrategy = "BEARER_TOKEN"
	AuthBasic       AuthStrategy = "BASIC"
	AuthAPIKey      AuthStrategy = "API_KEY"
	AuthSignedJWT   AuthStrategy = "SIGNED_JWT"
)

// AuthStrategies lists every strategy; each must have a provider at startup.
var AuthStrategies = []AuthStrategy{
	AuthNone,
	AuthBearerToken,
	AuthBasic,
	AuthAPIKey,
	AuthSignedJWT,
}

// OrNone maps the empty strategy to AuthNone.
func (a AuthStrategy) OrNone() AuthStrategy {
	if a == "" {
		return AuthNone
	}
	return a
}

// RequestMutation injects credentials into an outbound request.
type RequestMutation func(req *HTTPRequest) error
