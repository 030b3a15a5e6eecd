package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderName is the response header carrying the request's ray id.
const HeaderName = "X-Ray-ID"

// New returns middleware that assigns a unique ray id to every request,
// storing it in the context locals and echoing it in the response header.
// An incoming X-Ray-ID header is honored so upstream traces stay connected.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderName)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals("ray_id", rid)
		c.Set(HeaderName, rid)
		return c.Next()
	}
}
