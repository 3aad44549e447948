package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/webserver"
	"github.com/talkincode/ispcare/pkg/common"
	"go.uber.org/zap"
)

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func registerAuthRoutes() {
	webserver.ApiPOST("/auth/login", login)
	webserver.ApiGET("/auth/me", currentOperator)
}

func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse credentials", err.Error())
	}
	username := strings.TrimSpace(payload.Username)
	if username == "" || payload.Password == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Username and password are required", nil)
	}

	var opr domain.SysOpr
	if err := GetDB(c).Where("username = ?", username).First(&opr).Error; err != nil {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if opr.Password != common.Sha256HashWithSalt(payload.Password, common.GetSecretSalt()) {
		zap.L().Warn("adminapi: login rejected", zap.String("username", username), zap.String("ip", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if opr.Status == common.DISABLED {
		return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled", nil)
	}

	role := webserver.RoleOperator
	if opr.Level == domain.OprLevelAdmin {
		role = webserver.RoleAdmin
	}
	token, expires, err := webserver.Get().IssueToken(opr.Username, role)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", err.Error())
	}
	GetDB(c).Model(&opr).Update("last_login", time.Now())
	zap.L().Info("adminapi: operator logged in", zap.String("username", opr.Username), zap.String("role", role))
	return ok(c, map[string]interface{}{
		"token":      token,
		"expires_at": expires,
		"username":   opr.Username,
		"role":       role,
	})
}

func currentOperator(c echo.Context) error {
	claims := webserver.CurrentClaims(c)
	var opr domain.SysOpr
	if err := GetDB(c).Where("username = ?", claims.Username).First(&opr).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Operator not found", nil)
	}
	return ok(c, opr)
}

// actor names the operator behind the request for audit rows.
func actor(c echo.Context) string {
	if claims := webserver.CurrentClaims(c); claims != nil && claims.Username != "" {
		return claims.Username
	}
	return "api"
}
