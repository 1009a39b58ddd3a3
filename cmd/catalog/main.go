package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/app/repository"
	"github.com/ManuelReschke/AssetVault/internal/pkg/catalog"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database"
	"github.com/ManuelReschke/AssetVault/internal/pkg/env"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	svc := catalog.NewService(repository.GetGlobalFactory().GetRepositories())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, svc, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, svc *catalog.Service, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)

	switch command {
	case "account-add":
		name := fs.String("name", "", "account display name")
		email := fs.String("email", "", "account email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		account, raw, err := svc.AddAccount(ctx, *name, *email)
		if err != nil {
			return err
		}
		log.Printf("Account %d created", account.ID)
		fmt.Println(raw)

	case "key-rotate":
		email := fs.String("email", "", "account email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		raw, err := svc.RotateAPIKey(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Println(raw)

	case "key-revoke":
		email := fs.String("email", "", "account email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := svc.RevokeAPIKey(ctx, *email); err != nil {
			return err
		}
		log.Printf("API key of %s revoked", *email)

	case "plan-add":
		slug := fs.String("slug", "", "plan slug")
		name := fs.String("name", "", "plan name")
		period := fs.String("period", models.BillingPeriodMonthly, "monthly or yearly")
		price := fs.Int64("price", 0, "price in cents")
		daily := fs.Int("daily", 0, "daily download cap, 0 for unlimited")
		monthly := fs.Int("monthly", 0, "monthly download cap, 0 for unlimited")
		if err := fs.Parse(args); err != nil {
			return err
		}
		plan := &models.Plan{
			Slug:               *slug,
			Name:               *name,
			BillingPeriod:      *period,
			PriceCents:         *price,
			DailyDownloadCap:   capFlag(*daily),
			MonthlyDownloadCap: capFlag(*monthly),
		}
		if err := svc.AddPlan(ctx, plan); err != nil {
			return err
		}
		log.Printf("Plan %s created (id %d)", plan.Slug, plan.ID)

	case "plan-retire":
		slug := fs.String("slug", "", "plan slug")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return svc.RetirePlan(ctx, *slug)

	case "product-add":
		slug := fs.String("slug", "", "product slug")
		title := fs.String("title", "", "product title")
		assetType := fs.String("type", "", "asset type, e.g. psd or svg")
		objectKey := fs.String("object", "", "storage object key")
		fileName := fs.String("file", "", "download file name")
		private := fs.Bool("private", false, "require an explicit grant")
		if err := fs.Parse(args); err != nil {
			return err
		}
		product := &models.Product{
			Slug:      *slug,
			Title:     *title,
			AssetType: *assetType,
			ObjectKey: *objectKey,
			FileName:  *fileName,
			IsPublic:  !*private,
		}
		if err := svc.AddProduct(ctx, product); err != nil {
			return err
		}
		log.Printf("Product %s created (id %d, public %t)", product.Slug, product.ID, product.IsPublic)

	case "grant":
		email := fs.String("email", "", "account email")
		slug := fs.String("product", "", "product slug")
		until := fs.String("until", "", "expiry as RFC 3339, empty for no expiry")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var expiresAt *time.Time
		if *until != "" {
			t, err := time.Parse(time.RFC3339, *until)
			if err != nil {
				return fmt.Errorf("invalid -until: %w", err)
			}
			expiresAt = &t
		}
		if err := svc.GrantProduct(ctx, *email, *slug, expiresAt); err != nil {
			return err
		}
		log.Printf("Granted %s to %s", *slug, *email)

	default:
		printUsage()
		os.Exit(1)
	}
	return nil
}

func capFlag(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func printUsage() {
	fmt.Println("Usage: go run cmd/catalog/main.go [command] [flags]")
	fmt.Println("Commands:")
	fmt.Println("  account-add -name -email             - create an account and print its API key")
	fmt.Println("  key-rotate -email                    - issue a new API key")
	fmt.Println("  key-revoke -email                    - revoke the API key")
	fmt.Println("  plan-add -slug -name -period -price  - create a plan (-daily, -monthly caps)")
	fmt.Println("  plan-retire -slug                    - stop selling a plan")
	fmt.Println("  product-add -slug -title -type ...   - create a product (-private for grant only)")
	fmt.Println("  grant -email -product [-until]       - grant access to a private product")
}
