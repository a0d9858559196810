package auth

import (
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// Config carries the credentials the built-in providers inject.
type Config struct {
	BearerToken   string
	BasicUsername string
	BasicPassword string
	APIKeyHeader  string
	APIKey        string
	JWTSecret     string
	JWTIssuer     string
	JWTTTL        time.Duration
}

// None leaves the request untouched.
func None(*models.JobDefinition) (models.RequestMutation, error) {
	return func(*models.HTTPRequest) error { return nil }, nil
}

// BearerToken sets "Authorization: Bearer <token>".
func BearerToken(token string) Provider {
	return func(*models.JobDefinition) (models.RequestMutation, error) {
		if token == "" {
			return nil, errors.New("bearer token is not configured")
		}
		return func(req *models.HTTPRequest) error {
			req.SetHeader("Authorization", "Bearer "+token)
			return nil
		}, nil
	}
}

// Basic sets HTTP basic credentials.
func Basic(username, password string) Provider {
	return func(*models.JobDefinition) (models.RequestMutation, error) {
		if username == "" {
			return nil, errors.New("basic auth username is not configured")
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		return func(req *models.HTTPRequest) error {
			req.SetHeader("Authorization", "Basic "+encoded)
			return nil
		}, nil
	}
}

// APIKey sets a static key under the configured header, X-API-Key by default.
func APIKey(header, key string) Provider {
	if header == "" {
		header = "X-API-Key"
	}
	return func(*models.JobDefinition) (models.RequestMutation, error) {
		if key == "" {
			return nil, errors.New("api key is not configured")
		}
		return func(req *models.HTTPRequest) error {
			req.SetHeader(header, key)
			return nil
		}, nil
	}
}

// SignedJWT mints a short-lived HS256 token per request with the job key as subject
// and the target URL as audience.
func SignedJWT(secret, issuer string, ttl time.Duration) Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return func(job *models.JobDefinition) (models.RequestMutation, error) {
		if secret == "" {
			return nil, errors.New("jwt signing secret is not configured")
		}
		return func(req *models.HTTPRequest) error {
			now := time.Now()
			claims := jwt.RegisteredClaims{
				Subject:   job.Key,
				Issuer:    issuer,
				Audience:  jwt.ClaimStrings{req.URL},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return errors.Wrap(err, "sign jwt")
			}
			req.SetHeader("Authorization", "Bearer "+signed)
			return nil
		}, nil
	}
}
