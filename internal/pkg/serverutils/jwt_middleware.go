// FILE: internal/pkg/serverutils/jwt_middleware.go
package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Locals keys set by the JWT middleware.
const (
	LocalTenantID       = "tenant_id"
	LocalSubject        = "subject"
	LocalTenantVerified = "tenant_verified"
)

// ErrTenantMismatch describes the 403 sent when a request names a tenant other than the
// one carried by its verified token.
var ErrTenantMismatch = errors.New("tenant does not match token")

// NewJwtMiddleware verifies HS256 bearer tokens signed with secret and
// exposes the tenant_id and sub claims through ctx.Locals.
func NewJwtMiddleware(secret string) fiber.Handler {
	key := []byte(secret)
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}

		tenantID, _ := claims["tenant_id"].(string)
		if tenantID == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Token has no tenant"))
		}
		subject, _ := claims["sub"].(string)

		ctx.Locals(LocalTenantID, tenantID)
		ctx.Locals(LocalSubject, subject)
		ctx.Locals(LocalTenantVerified, true)
		return ctx.Next()
	}
}

// TenantID returns the tenant set by the JWT middleware.
func TenantID(ctx *fiber.Ctx) string {
	tenantID, _ := ctx.Locals(LocalTenantID).(string)
	return tenantID
}

// ResolveTenant picks the tenant for a request that may also name one in its
// body. A verified tenant can only be restated, never replaced.
func ResolveTenant(ctx *fiber.Ctx, requested string) (string, error) {
	tenantID := TenantID(ctx)
	if requested == "" || requested == tenantID {
		return tenantID, nil
	}
	if verified, _ := ctx.Locals(LocalTenantVerified).(bool); verified {
		return "", fiber.NewError(fiber.StatusForbidden, ErrTenantMismatch.Error())
	}
	return requested, nil
}

// DefaultTenant is used when authentication is disabled and the caller sends
// no X-Tenant-ID header.
const DefaultTenant = "default"

// NewTenantMiddleware verifies bearer tokens when secret is set. With an
// empty secret the tenant comes from the X-Tenant-ID header.
func NewTenantMiddleware(secret string) fiber.Handler {
	if secret != "" {
		return NewJwtMiddleware(secret)
	}
	return func(ctx *fiber.Ctx) error {
		tenantID := ctx.Get("X-Tenant-ID")
		if tenantID == "" {
			tenantID = DefaultTenant
		}
		ctx.Locals(LocalTenantID, tenantID)
		return ctx.Next()
	}
}
