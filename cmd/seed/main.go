package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/settle-next/internal/authz"
	"github.com/settle-next/internal/config"
	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/provider"
	"github.com/settle-next/internal/service"

	"github.com/shopspring/decimal"
)

type seedEmployee struct {
	ID    uint
	Email string
	Name  string
	Rail  string
}

type seedReferral struct {
	ReferrerID uint
	CustomerID uint
	Code       string
	Plan       string
	StartedAgo time.Duration
}

func main() {
	var tokenTTL time.Duration
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "演示操作员令牌有效期")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	container := provider.NewContainer(cfg)
	defer container.Close()

	employees := []seedEmployee{
		{ID: 101, Email: "ana@example.com", Name: "Ana", Rail: constants.RailManual},
		{ID: 102, Email: "ben@example.com", Name: "Ben", Rail: constants.RailStripe},
	}
	for _, emp := range employees {
		input := service.PayoutAccountInput{
			PayeeType:     constants.PayeeTypeEmployee,
			PayeeID:       emp.ID,
			Email:         emp.Email,
			DisplayName:   emp.Name,
			PreferredRail: emp.Rail,
		}
		if emp.Rail == constants.RailManual {
			input.ManualHandle = "@" + emp.Name
		}
		if _, err := container.PayoutAccountService.UpsertAccount(input); err != nil {
			stdLog.Printf("Failed to upsert payout account for employee %d: %v", emp.ID, err)
			continue
		}
		stdLog.Printf("Payout account ready: employee %d (%s)", emp.ID, emp.Rail)
	}

	now := time.Now().UTC()
	referrals := []seedReferral{
		{ReferrerID: 201, CustomerID: 301, Code: "WELCOME301", Plan: "120.00", StartedAgo: 40 * 24 * time.Hour},
		{ReferrerID: 201, CustomerID: 302, Code: "WELCOME302", Plan: "90.00", StartedAgo: 10 * 24 * time.Hour},
	}
	subscriptions := map[uint]uint{}
	for _, item := range referrals {
		if _, err := container.PayoutAccountService.UpsertAccount(service.PayoutAccountInput{
			PayeeType:     constants.PayeeTypeReferrer,
			PayeeID:       item.ReferrerID,
			Email:         fmt.Sprintf("referrer%d@example.com", item.ReferrerID),
			PreferredRail: constants.RailManual,
			ManualHandle:  fmt.Sprintf("referrer-%d", item.ReferrerID),
		}); err != nil {
			stdLog.Printf("Failed to upsert referrer account %d: %v", item.ReferrerID, err)
		}

		sub, err := container.SubscriptionRepo.GetLatestByCustomer(item.CustomerID)
		if err != nil {
			stdLog.Printf("Failed to load subscription for customer %d: %v", item.CustomerID, err)
			continue
		}
		if sub == nil {
			sub = &models.Subscription{
				CustomerID:      item.CustomerID,
				Status:          constants.SubscriptionStatusActive,
				PlanAmount:      models.NewMoneyFromDecimal(decimal.RequireFromString(item.Plan)),
				VisitsPerPeriod: 4,
				StartDate:       now.Add(-item.StartedAgo),
			}
			if err := container.SubscriptionRepo.Create(sub); err != nil {
				stdLog.Printf("Failed to create subscription for customer %d: %v", item.CustomerID, err)
				continue
			}
			stdLog.Printf("Created subscription: customer %d", item.CustomerID)
		}
		subscriptions[item.CustomerID] = sub.ID

		referral, err := container.ReferralService.CreateReferral(service.CreateReferralInput{
			ReferrerID: item.ReferrerID,
			ReferredID: item.CustomerID,
			Code:       item.Code,
			Activate:   true,
		})
		if err != nil {
			if errors.Is(err, service.ErrReferralDuplicate) {
				stdLog.Printf("Referral already exists: customer %d", item.CustomerID)
				continue
			}
			stdLog.Printf("Failed to create referral for customer %d: %v", item.CustomerID, err)
			continue
		}
		stdLog.Printf("Created referral: %d -> %d", referral.ReferrerID, referral.ReferredID)
	}

	completions := []service.ServiceCompletionInput{
		{ServiceID: 9001, EmployeeID: 101, CustomerID: 301, Gross: mustMoney("120.00"), Visits: 4, AutoApprove: true},
		{ServiceID: 9002, EmployeeID: 102, CustomerID: 302, Gross: mustMoney("90.00"), Visits: 4, AutoApprove: true},
		{ServiceID: 9003, EmployeeID: 101, CustomerID: 303, Gross: mustMoney("45.50"), Visits: 2},
	}
	for _, input := range completions {
		if subID, ok := subscriptions[input.CustomerID]; ok {
			input.SubscriptionID = &subID
		}
		result, err := container.EarningService.RecordServiceCompletion(input)
		if err != nil {
			if errors.Is(err, service.ErrEarningDuplicate) {
				stdLog.Printf("Service already recorded: %d", input.ServiceID)
				continue
			}
			stdLog.Printf("Failed to record service %d: %v", input.ServiceID, err)
			continue
		}
		stdLog.Printf("Recorded service %d: payment %d net %s (%s)",
			input.ServiceID, result.Payment.ID, result.Payment.Amount.String(), result.Payment.Status)
	}

	token, err := authz.IssueActorToken(cfg.JWT.SecretKey, cfg.JWT.Issuer, 1, constants.RoleOperator, tokenTTL)
	if err != nil {
		stdLog.Fatalf("Failed to issue operator token: %v", err)
	}
	fmt.Println("Seed completed. Operator token:")
	fmt.Println(token)
}

func mustMoney(raw string) models.Money {
	return models.NewMoneyFromDecimal(decimal.RequireFromString(raw))
}
