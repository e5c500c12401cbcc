// Command seed-owner provisions a platform owner directly against the
// database. The first owner cannot be created over HTTP because the owner
// endpoint itself requires an owner token.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-identity-api/internal/dto"
	"github.com/noah-isme/sma-identity-api/internal/repository"
	"github.com/noah-isme/sma-identity-api/internal/service"
	"github.com/noah-isme/sma-identity-api/pkg/config"
	"github.com/noah-isme/sma-identity-api/pkg/database"
	"github.com/noah-isme/sma-identity-api/pkg/logger"
)

func main() {
	var (
		fullName string
		email    string
		password string
		timeout  time.Duration
	)

	flag.StringVar(&fullName, "name", "", "Owner full name")
	flag.StringVar(&email, "email", "", "Owner e-mail address")
	flag.StringVar(&password, "password", "", "Initial password; generated when empty")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if fullName == "" || email == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	tenants := service.NewTenantDirectory(repository.NewTenantRepository(db), nil)
	svc := service.NewProvisioningService(repository.NewProvisioningStore(db), tenants, nil, nil, validator.New(), logr, service.ProvisioningConfig{
		MaxLoginIDAttempts:      cfg.Provisioning.MaxLoginIDAttempts,
		GeneratedPasswordLength: cfg.Provisioning.GeneratedPasswordLength,
	})

	res, err := svc.ProvisionOwnerAdmin(ctx, dto.ProvisionAdminRequest{FullName: fullName, Email: email, Password: password})
	if err != nil {
		logr.Fatal("failed to provision owner", zap.Error(err))
	}

	fmt.Printf("login_id: %s\n", res.Identity.LoginID)
	if res.Identity.TemporaryPassword != "" {
		fmt.Printf("temporary_password: %s\n", res.Identity.TemporaryPassword)
	}
}
