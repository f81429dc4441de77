package loan

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ls "librarylend/service/lending"
)

type Controller struct {
	Svc ls.Service
	V   *validator.Validate
	Log *slog.Logger
}

func codeToStatus(code ls.ErrCode) (int, string) {
	switch code {
	case ls.ErrNotFound:
		return http.StatusNotFound, "not found"
	case ls.ErrNoCopies:
		return http.StatusConflict, "no copies available"
	case ls.ErrAlreadyReturned:
		return http.StatusConflict, "loan already returned"
	case ls.ErrContention:
		return http.StatusConflict, "conflicting operation, retry"
	case ls.ErrStoreUnavailable:
		return http.StatusServiceUnavailable, "store unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// POST /v1/loans
func (h *Controller) Checkout(c echo.Context) error {
	var req CheckoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	pid, _ := c.Get("patron_id").(int64)

	l, err := h.Svc.Checkout(c.Request().Context(), pid, req.BookID)
	if err != nil {
		h.Log.Error("checkout", "err", err, "patron_id", pid, "book_id", req.BookID)
		status, msg := codeToStatus(ls.Code(err))
		return c.JSON(status, echo.Map{"message": msg})
	}
	return c.JSON(http.StatusCreated, l)
}

// POST /v1/loans/:id/return
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	l, err := h.Svc.Return(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("return", "err", err, "loan_id", id)
		status, msg := codeToStatus(ls.Code(err))
		return c.JSON(status, echo.Map{"message": msg})
	}
	return c.JSON(http.StatusOK, l)
}

// POST /v1/loans/:id/fine
func (h *Controller) RefreshFine(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	fine, err := h.Svc.RefreshFine(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("refresh fine", "err", err, "loan_id", id)
		status, msg := codeToStatus(ls.Code(err))
		return c.JSON(status, echo.Map{"message": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"loan_id": id, "fine": fine})
}

// GET /v1/loans/my
func (h *Controller) MyOpenLoans(c echo.Context) error {
	pid, _ := c.Get("patron_id").(int64)

	loans, err := h.Svc.ListOpenLoans(c.Request().Context(), pid)
	if err != nil {
		h.Log.Error("list open loans", "err", err, "patron_id", pid)
		status, msg := codeToStatus(ls.Code(err))
		return c.JSON(status, echo.Map{"message": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": loans})
}

// GET /v1/books/:id/availability
func (h *Controller) Availability(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	n, err := h.Svc.AvailableCopies(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("availability", "err", err, "book_id", id)
		status, msg := codeToStatus(ls.Code(err))
		return c.JSON(status, echo.Map{"message": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"book_id": id, "available_copies": n})
}

// GET /v1/reports/overdue (admin)
func (h *Controller) OverdueReport(c echo.Context) error {
	rows, err := h.Svc.OverdueReport(c.Request().Context())
	if err != nil {
		h.Log.Error("overdue report", "err", err)
		status, msg := codeToStatus(ls.Code(err))
		return c.JSON(status, echo.Map{"message": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}
