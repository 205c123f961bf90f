package borrow

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Youngprinnce/digital-library/app/echoServer/jwtx"
	"github.com/Youngprinnce/digital-library/model"
	bs "github.com/Youngprinnce/digital-library/service/borrow"
)

type Controller struct {
	Svc bs.Service
	Log *slog.Logger
}

// POST /v1/books/:id/borrow
func (h *Controller) Borrow(c echo.Context) error {
	bookID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || bookID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	rec, err := h.Svc.Borrow(c.Request().Context(), uid, bookID)
	if err != nil {
		return h.fail(c, "borrow", err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// POST /v1/books/:id/return
func (h *Controller) Return(c echo.Context) error {
	bookID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || bookID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	rec, err := h.Svc.Return(c.Request().Context(), uid, bookID)
	if err != nil {
		return h.fail(c, "return", err)
	}
	return c.JSON(http.StatusOK, rec)
}

// GET /v1/users/me/borrows
func (h *Controller) MyBorrows(c echo.Context) error {
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	rows, err := h.Svc.ListActive(c.Request().Context(), uid)
	if err != nil {
		return h.fail(c, "my borrows", err)
	}
	if rows == nil {
		rows = []model.Borrow{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	switch bs.Code(err) {
	case bs.ErrBookNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
	case bs.ErrUserNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
	case bs.ErrNoActiveBorrow:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no active borrow found for this book"})
	case bs.ErrNotAvailable:
		return c.JSON(http.StatusConflict, echo.Map{"message": "book is already borrowed"})
	case bs.ErrAlreadyHeld:
		return c.JSON(http.StatusConflict, echo.Map{"message": "you have already borrowed this book"})
	case bs.ErrUnavailable:
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"message": "try again shortly"})
	default:
		h.Log.Error(op, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}
