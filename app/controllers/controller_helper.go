package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GetClientIP determines the client address, preferring proxy headers.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		// The first entry is the original client
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return strings.TrimPrefix(c.IP(), "::ffff:")
}

func parseUintParam(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// requestHeaders flattens the request headers, keeping the first value per name.
func requestHeaders(c *fiber.Ctx) map[string]string {
	out := map[string]string{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, ok := out[k]; !ok {
			out[k] = string(value)
		}
	})
	return out
}
