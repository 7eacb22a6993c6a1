package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	tokenAudience   = "lms"
)

var (
	errNoToken              = echo.NewHTTPError(http.StatusUnauthorized, "No token provided, authorization denied")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "Token is not valid")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "Refresh has expired")
	errInstructorRequired   = echo.NewHTTPError(http.StatusForbidden, "Access denied. Instructor role required")
	errAdminRequired        = echo.NewHTTPError(http.StatusForbidden, "Access denied. Admin role required")
	errUsrNotFoundInContext = errors.New("user object not found in echo.Context")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	IsStudent    bool   `json:"is_student,omitempty"`
	IsInstructor bool   `json:"is_instructor,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
}

func GetUserClaims(usr user.User, conf *core.Config, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Role:         usr.Role,
		IsStudent:    usr.IsStudent(),
		IsInstructor: usr.IsInstructor(),
		IsAdmin:      usr.IsAdmin(),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func jwtConfig(conf *core.Config, lookup string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
		TokenLookup:   lookup,
		ErrorHandler: func(err error) error {
			if err == middleware.ErrJWTMissing {
				return errNoToken
			}
			return errInvalidToken
		},
	}
}

// authMiddleware holds the authentication middlewares shared by the route groups.
type authMiddleware struct {
	// required rejects requests without a valid bearer token, then loads the user.
	required echo.MiddlewareFunc
	// optional authenticates the request when it carries a bearer token.
	optional echo.MiddlewareFunc
	// query reads the token from the `token` query param, for EventSource clients.
	query echo.MiddlewareFunc
}

func newAuthMiddleware(conf *core.Config, svc user.Service) authMiddleware {
	header := jwtConfig(conf, "header:"+echo.HeaderAuthorization)
	optional := header
	optional.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	load := loadUserMiddleware(svc)

	chain := func(jwtMw echo.MiddlewareFunc) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return jwtMw(load(next))
		}
	}
	return authMiddleware{
		required: chain(middleware.JWTWithConfig(header)),
		optional: chain(middleware.JWTWithConfig(optional)),
		query:    chain(middleware.JWTWithConfig(jwtConfig(conf, "query:token"))),
	}
}

func getContextClaims(ctx echo.Context) (Claims, bool) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, true
		}
	}
	return Claims{}, false
}

// loadUserMiddleware puts the token's user in the context. Deleted users are rejected, deactivated ones forbidden.
func loadUserMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, ok := getContextClaims(ctx)
			if !ok {
				return next(ctx) // optional auth without a token
			}

			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errInvalidToken
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return user.ErrAccountDeactivated
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUsrNotFoundInContext
}

// getOptionalUser returns the authenticated user, if any.
func getOptionalUser(ctx echo.Context) *user.User {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return &usr
	}
	return nil
}

func instructorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.CanTeach() {
			return errInstructorRequired
		}
		return next(ctx)
	}
}

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.IsAdmin() {
			return errAdminRequired
		}
		return next(ctx)
	}
}

func refreshToken(ctx echo.Context, conf *core.Config) (string, error) {
	claims, ok := getContextClaims(ctx)
	if !ok {
		return "", errInvalidToken
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(GetUserClaims(usr, conf, claims.OrigIssuedAt), conf)
	return token, errors.Wrap(err, "generating token")
}
