package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
	"github.com/noah-isme/cms-api/pkg/response"
)

// ContextIdentityKey is the gin context key storing the verified caller identity.
const ContextIdentityKey = "currentIdentity"

// TokenVerifier turns an Authorization header into an identity.
type TokenVerifier interface {
	Verify(header string) (*models.Identity, error)
}

// RouteAccess declares who may call a route. Public routes skip token
// verification entirely. A non-empty Roles list admits callers holding at
// least one of them; an empty list admits any authenticated caller.
type RouteAccess struct {
	Public bool
	Roles  []models.Role
}

// PublicAccess marks a route as open.
func PublicAccess() RouteAccess {
	return RouteAccess{Public: true}
}

// Authenticated admits any verified caller.
func Authenticated() RouteAccess {
	return RouteAccess{}
}

// RequireAnyRole admits verified callers holding one of roles.
func RequireAnyRole(roles ...models.Role) RouteAccess {
	return RouteAccess{Roles: roles}
}

// Gate enforces access for a single route.
func Gate(verifier TokenVerifier, access RouteAccess) gin.HandlerFunc {
	return func(c *gin.Context) {
		if access.Public {
			c.Next()
			return
		}

		identity, err := verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if identity == nil {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		if len(access.Roles) > 0 && !identity.Roles.Intersects(access.Roles) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
			c.Abort()
			return
		}

		c.Set(ContextIdentityKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Gate, if any.
func CurrentIdentity(c *gin.Context) (*models.Identity, bool) {
	value, exists := c.Get(ContextIdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*models.Identity)
	return identity, ok && identity != nil
}
