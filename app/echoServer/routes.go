package echoServer

import (
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Youngprinnce/digital-library/app/echoServer/controller/auth"
	"github.com/Youngprinnce/digital-library/app/echoServer/controller/book"
	"github.com/Youngprinnce/digital-library/app/echoServer/controller/borrow"
	"github.com/Youngprinnce/digital-library/app/echoServer/controller/user"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrow    *borrow.Controller
	User      *user.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/auth/register", c.Auth.Register)
	pub.POST("/auth/login", c.Auth.Login)

	// Auth
	authed := e.Group("/v1")
	authed.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
	}))

	// Users
	authed.GET("/users/me", c.User.Me)
	authed.GET("/users/me/borrows", c.Borrow.MyBorrows)

	// Books
	authed.GET("/books", c.Book.List)
	authed.GET("/books/search", c.Book.Search)
	authed.GET("/books/:id", c.Book.Detail)
	// Admin endpoint
	authed.POST("/books", c.Book.Create)

	// Lending
	authed.POST("/books/:id/borrow", c.Borrow.Borrow)
	authed.POST("/books/:id/return", c.Borrow.Return)
}
