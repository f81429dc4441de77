// Package main library lending API.
//
// @title           Library Lending API
// @version         1.0
// @description     Small library service (catalog, patrons, loans, fines).
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
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"librarylend/app/echoServer"
	authctrl "librarylend/app/echoServer/controller/auth"
	bookctrl "librarylend/app/echoServer/controller/book"
	loanctrl "librarylend/app/echoServer/controller/loan"
	"librarylend/app/echoServer/validation"
	"librarylend/config"
	bookrepo "librarylend/repository/book"
	loanrepo "librarylend/repository/loan"
	metadatarepo "librarylend/repository/metadata"
	patronrepo "librarylend/repository/patron"
	authsvc "librarylend/service/auth"
	catalogsvc "librarylend/service/catalog"
	lendingsvc "librarylend/service/lending"
	"librarylend/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	pr := patronrepo.New(db)
	br := bookrepo.New(db)
	lr := loanrepo.New(db)
	mr := metadatarepo.NewOpenLibrary()

	// services
	as := authsvc.New(pr, cfg.JWTSecret)
	cs := catalogsvc.New(br, mr)
	ls := lendingsvc.New(db, br, lr)

	// periodic fine sweep
	ref := lendingsvc.NewRefresher(db, lr)
	go func() {
		t := time.NewTicker(time.Duration(cfg.FineRefreshMinutes) * time.Minute)
		defer t.Stop()
		for range t.C {
			n, err := ref.RefreshOpenFines(ctx)
			if err != nil {
				log.Error("fine sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("fine sweep", "updated", n)
			}
		}
	}()

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: cs, V: v, Log: log}
	loanC := &loanctrl.Controller{Svc: ls, V: v, Log: log}

	// echo
	e := echo.New()
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
		Auth: authC,
		Book: bookC,
		Loan: loanC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Info("starting server", "port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
