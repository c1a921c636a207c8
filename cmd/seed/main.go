// Package main seeds a store with a demo motorcycle-parts catalog and opening
// stock, and prints operator tokens when JWT auth is configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"motoledger/internal/core/apperror"
	appctx "motoledger/internal/core/context"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/auth"
	"motoledger/internal/domain/documents/intake"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/config"
	"motoledger/internal/platform/di"
	"motoledger/pkg/logger"
)

type demoProduct struct {
	sku, name    string
	price, floor string
	lots         []demoLot
}

type demoLot struct {
	qty  int64
	cost string
}

var catalog = []demoProduct{
	{"CHN-520-120", "Drive chain 520, 120 links", "45", "30", []demoLot{{10, "22"}, {10, "24.5"}}},
	{"SPK-CR8E", "Spark plug CR8E", "9.5", "5", []demoLot{{40, "3.1"}, {60, "3.4"}}},
	{"PAD-FA196", "Brake pads FA196", "28", "18", []demoLot{{12, "11"}}},
	{"OIL-10W40-1L", "Engine oil 10W-40, 1 L", "14", "9", []demoLot{{48, "6.2"}, {24, "6.75"}}},
	{"FLT-HF204", "Oil filter HF204", "11", "6", []demoLot{{30, "3.9"}}},
	{"TYR-120-70-17", "Front tyre 120/70 ZR17", "165", "120", []demoLot{{4, "98"}, {4, "104"}}},
}

func main() {
	withStock := flag.Bool("stock", true, "receive opening stock through intakes")
	tokens := flag.Bool("tokens", true, "print JWT tokens for demo operators (jwt auth only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.WithUser(ctx, &appctx.UserContext{
		UserID:      "seed",
		DisplayName: "Seed",
		Roles:       []string{auth.RoleAdmin},
		IsAdmin:     true,
		Provider:    "seed",
	})

	container, err := di.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}
	defer container.Close()

	svc := container.Services
	created := 0
	for _, d := range catalog {
		p := ledger.NewProduct(d.sku, d.name, types.MustMoney(d.price), types.MustMoney(d.floor))
		err := svc.Ledger.CreateProduct(ctx, p)
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeDuplicate {
			log.Infow("product exists, skipping", "sku", d.sku)
			continue
		}
		if err != nil {
			log.Fatalw("failed to create product", "sku", d.sku, "error", err)
		}
		created++

		if !*withStock {
			continue
		}
		for i, lot := range d.lots {
			doc := intake.New("OPENING-" + d.sku)
			doc.Date = time.Now().UTC().AddDate(0, 0, i-len(d.lots))
			doc.AddLine(p.ID, types.Units(lot.qty), types.MustMoney(lot.cost))
			if err := svc.Intakes.Create(ctx, doc); err != nil {
				log.Fatalw("failed to create intake", "sku", d.sku, "error", err)
			}
			if _, err := svc.Intakes.Activate(ctx, doc.ID); err != nil {
				log.Fatalw("failed to activate intake", "number", doc.Number, "error", err)
			}
		}
	}
	log.Infow("catalog seeded", "created", created, "total", len(catalog))

	if *tokens && cfg.Auth.Provider == "jwt" {
		jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
		if cfg.Auth.JWTIssuer != "" {
			jwtCfg.Issuer = cfg.Auth.JWTIssuer
		}
		jwt := auth.NewJWTService(jwtCfg)
		for _, role := range []string{auth.RoleClerk, auth.RoleManager, auth.RoleAdmin} {
			tok, exp, err := jwt.GenerateAccessToken("demo-"+role, role+"@shop.local", strings.ToUpper(role[:1])+role[1:], []string{role})
			if err != nil {
				log.Fatalw("failed to sign token", "role", role, "error", err)
			}
			fmt.Printf("%-8s %s (expires %s)\n", role, tok, exp.Format(time.RFC3339))
		}
	}
}
