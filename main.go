// Package main digital library API.
//
// @title           Digital Library API
// @version         1.0
// @description     Library lending service (catalog, borrowing, users).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/Youngprinnce/digital-library/app/echoServer"
	authctrl "github.com/Youngprinnce/digital-library/app/echoServer/controller/auth"
	bookctrl "github.com/Youngprinnce/digital-library/app/echoServer/controller/book"
	borrowctrl "github.com/Youngprinnce/digital-library/app/echoServer/controller/borrow"
	userctrl "github.com/Youngprinnce/digital-library/app/echoServer/controller/user"
	"github.com/Youngprinnce/digital-library/app/echoServer/validation"
	"github.com/Youngprinnce/digital-library/config"
	bookrepo "github.com/Youngprinnce/digital-library/repository/book"
	borrowrepo "github.com/Youngprinnce/digital-library/repository/borrow"
	olrepo "github.com/Youngprinnce/digital-library/repository/openlibrary"
	userrepo "github.com/Youngprinnce/digital-library/repository/user"
	authsvc "github.com/Youngprinnce/digital-library/service/auth"
	booksvc "github.com/Youngprinnce/digital-library/service/book"
	borrowsvc "github.com/Youngprinnce/digital-library/service/borrow"
	"github.com/Youngprinnce/digital-library/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	lr := borrowrepo.New(db)
	ol := olrepo.NewHTTP(cfg.OpenLibraryURL)

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(br, ol, log)
	ls := borrowsvc.New(lr, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowC := &borrowctrl.Controller{Svc: ls, Log: log}
	userC := &userctrl.Controller{Users: ur, Log: log}

	// echo
	e := echo.New()
	e.HideBanner = true
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:   authC,
		Book:   bookC,
		Borrow: borrowC,
		User:   userC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Info("starting server", "port", port, "env", cfg.Env)

	e.Logger.Fatal(e.Start(":" + port))
}
