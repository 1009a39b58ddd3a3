package usercontext

import "github.com/gofiber/fiber/v2"

// AccountContext describes the authenticated caller of a request.
type AccountContext struct {
	AccountID       uint   `json:"account_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// GetAccountContext retrieves the account context from fiber context.
// Returns an anonymous context if none is set.
func GetAccountContext(c *fiber.Ctx) AccountContext {
	if ctx, ok := c.Locals(KeyAccountContext).(AccountContext); ok {
		return ctx
	}
	return AccountContext{}
}

// SetAccountContext stores the context for downstream handlers.
func SetAccountContext(c *fiber.Ctx, ctx AccountContext) {
	c.Locals(KeyAccountContext, ctx)
}

// GetAccountID returns the current account ID, or 0 for anonymous requests.
func GetAccountID(c *fiber.Ctx) uint {
	return GetAccountContext(c).AccountID
}
