package user

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Youngprinnce/digital-library/app/echoServer/jwtx"
	userrepo "github.com/Youngprinnce/digital-library/repository/user"
)

type Controller struct {
	Users userrepo.Repo
	Log   *slog.Logger
}

// GET /v1/users/me
func (h *Controller) Me(c echo.Context) error {
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	u, err := h.Users.ByID(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("user me", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	if u == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
	}
	return c.JSON(http.StatusOK, u)
}
