package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/onstechno/storefront/internal/auth"
)

const identityKey = "identity"

// Identity returns the authenticated caller set by the auth middleware, or
// nil for anonymous requests.
func Identity(c *fiber.Ctx) *auth.Identity {
	identity, _ := c.Locals(identityKey).(*auth.Identity)
	return identity
}

func parseBearer(c *fiber.Ctx, secret []byte) (*auth.Identity, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID == 0 {
		return nil, fmt.Errorf("token missing user_id")
	}

	isAdmin, _ := claims["is_admin"].(bool)

	return &auth.Identity{
		UserID:  int64(userID),
		IsAdmin: isAdmin,
	}, nil
}

// NewAuthMiddleware rejects requests without a valid bearer token.
func NewAuthMiddleware(secret string) fiber.Handler {
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		identity, err := parseBearer(c, key)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: " + err.Error()})
		}
		if identity == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed header"})
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// NewOptionalAuthMiddleware attaches the caller identity when a valid token
// is present and lets anonymous requests through. A malformed token is still
// rejected so a client never silently places a guest order with a bad token.
func NewOptionalAuthMiddleware(secret string) fiber.Handler {
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		identity, err := parseBearer(c, key)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: " + err.Error()})
		}
		if identity != nil {
			c.Locals(identityKey, identity)
		}

		return c.Next()
	}
}

// NewAdminMiddleware runs after NewAuthMiddleware and gates admin routes.
func NewAdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := Identity(c)
		if identity == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed user"})
		}
		if !identity.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin access required"})
		}

		return c.Next()
	}
}
