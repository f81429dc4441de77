package echoServer

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	authctrl "librarylend/app/echoServer/controller/auth"
	bookctrl "librarylend/app/echoServer/controller/book"
	loanctrl "librarylend/app/echoServer/controller/loan"
	"librarylend/app/echoServer/jwtx"
)

type C struct {
	Auth *authctrl.Controller
	Book *bookctrl.Controller
	Loan *loanctrl.Controller

	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/patrons/register", c.Auth.Register)
	pub.POST("/patrons/login", c.Auth.Login)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),

		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
	}))
	auth.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			pid, err := jwtx.PatronIDFromContext(ctx)
			if err != nil {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}
			ctx.Set("patron_id", pid)
			return next(ctx)
		}
	})

	// Catalog
	auth.GET("/books", c.Book.List)
	auth.GET("/books/:id", c.Book.Detail)
	auth.GET("/books/:id/availability", c.Loan.Availability)

	// Lending
	auth.POST("/loans", c.Loan.Checkout)
	auth.POST("/loans/:id/return", c.Loan.Return)
	auth.POST("/loans/:id/fine", c.Loan.RefreshFine)
	auth.GET("/loans/my", c.Loan.MyOpenLoans)

	// Admin
	admin := auth.Group("", RequireAdmin())
	admin.POST("/books", c.Book.Add)
	admin.DELETE("/books/:id", c.Book.Remove)
	admin.GET("/reports/overdue", c.Loan.OverdueReport)
}
