package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	ApiPrefix = "/api/v1"

	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// WebServer admin api server. Routes under ApiPrefix require a bearer token
// except the public paths given to New.
type WebServer struct {
	root   *echo.Echo
	api    *echo.Group
	secret []byte
	ttl    time.Duration
}

var server *WebServer

// Claims carried by admin api tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func New(secret string, ttl time.Duration, public ...string) *WebServer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	open := map[string]bool{}
	for _, p := range public {
		open[ApiPrefix+p] = true
	}
	s := &WebServer{root: e, secret: []byte(secret), ttl: ttl}
	s.api = e.Group(ApiPrefix, echojwt.WithConfig(echojwt.Config{
		SigningKey:    s.secret,
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return new(Claims) },
		Skipper: func(c echo.Context) bool {
			return open[c.Path()]
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"code":    "UNAUTHORIZED",
				"message": "Missing or invalid token",
			})
		},
	}))
	return s
}

// Init creates the process-wide server used by the Api* helpers.
func Init(secret string, ttl time.Duration, public ...string) *WebServer {
	server = New(secret, ttl, public...)
	return server
}

func Get() *WebServer {
	return server
}

func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

func (s *WebServer) Group() *echo.Group {
	return s.api
}

// IssueToken signs a token for an operator.
func (s *WebServer) IssueToken(username, role string) (string, time.Time, error) {
	expires := time.Now().Add(s.ttl)
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// Start serves until ctx is cancelled.
func (s *WebServer) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("webserver: listening", zap.String("addr", addr))
		errCh <- s.root.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.root.Shutdown(shutdownCtx)
	}
}

func ApiGET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.api.GET(path, h, m...)
}

func ApiPOST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.api.POST(path, h, m...)
}

func ApiPUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.api.PUT(path, h, m...)
}

func ApiDELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.api.DELETE(path, h, m...)
}

// CurrentClaims returns the verified token claims, nil on public routes.
func CurrentClaims(c echo.Context) *Claims {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	claims, _ := token.Claims.(*Claims)
	return claims
}

// RequireRole rejects tokens whose role is not listed. Admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := CurrentClaims(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"code": "UNAUTHORIZED", "message": "Missing or invalid token",
				})
			}
			if claims.Role == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if strings.EqualFold(claims.Role, r) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]interface{}{
				"code": "FORBIDDEN", "message": "Insufficient role",
			})
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			zap.L().Debug("webserver: request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}
