package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

const (
	contextTokenKey  = "viewerToken"
	contextViewerKey = "viewer"
	tokenAudience    = "Academia"
)

// Claims represents the authorization claims transmitted via a JWT.
// Subject is the viewer (student) id.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	IsStudent    bool   `json:"is_student,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GetViewerClaims returns the claims of a student token valid for conf.Server.JWTExpirationDelta.
func GetViewerClaims(conf *core.Config, viewerID, name string, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   viewerID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         name,
		IsStudent:    true,
	}
}

// GenerateToken generates a signed JWT token string representing the viewer Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextToken(ctx echo.Context) (*jwt.Token, *Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return token, claims, nil
		}
	}
	return nil, nil, errUnauthorized
}

// getContextViewer returns the authenticated student. The raw token is forwarded to the
// attendance service on their behalf.
func getContextViewer(ctx echo.Context) (catchup.Viewer, error) {
	if v, ok := ctx.Get(contextViewerKey).(catchup.Viewer); ok {
		return v, nil
	}
	token, claims, err := getContextToken(ctx)
	if err != nil {
		return catchup.Viewer{}, err
	}
	if claims.Subject == "" || !claims.IsStudent {
		return catchup.Viewer{}, errHttpForbidden
	}
	v := catchup.Viewer{ID: claims.Subject, Token: token.Raw}
	ctx.Set(contextViewerKey, v)
	return v, nil
}
