package identity

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kantanworks/orderdesk/internal/auth"
)

// Identity headers set by the authenticating edge proxy. The core trusts the
// edge; it performs no authentication of its own.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"
)

// CallerIdentity resolves the request's identity from the edge headers. A
// missing or malformed user id yields an unknown identity; services reject
// writes from those.
func CallerIdentity(c echo.Context) auth.Identity {
	id, err := strconv.ParseInt(c.Request().Header.Get(HeaderUserID), 10, 64)
	if err != nil || id <= 0 {
		return auth.Identity{}
	}

	var roles []string
	for _, role := range strings.Split(c.Request().Header.Get(HeaderUserRoles), ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}

	name := strings.TrimSpace(c.Request().Header.Get(HeaderUserName))
	if name == "" {
		name = "user " + strconv.FormatInt(id, 10)
	}

	return auth.Identity{UserID: id, DisplayName: name, Roles: roles}
}
