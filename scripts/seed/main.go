package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

type seedAccount struct {
	number    string
	name      string
	typ       accounting.AccountType
	parent    string
	subLedger bool
}

// Parents precede children.
var chart = []seedAccount{
	{"1000", "Assets", accounting.AccountTypeAsset, "", false},
	{"1100", "Cash and Banks", accounting.AccountTypeAsset, "1000", false},
	{"1110", "Petty Cash", accounting.AccountTypeAsset, "1100", false},
	{"1120", "Bank Operating", accounting.AccountTypeAsset, "1100", false},
	{"1200", "Accounts Receivable", accounting.AccountTypeAsset, "1000", true},
	{"1300", "Prepaid Expenses", accounting.AccountTypeAsset, "1000", false},
	{"1400", "Inventory", accounting.AccountTypeAsset, "1000", false},
	{"2000", "Liabilities", accounting.AccountTypeLiability, "", false},
	{"2100", "Accounts Payable", accounting.AccountTypeLiability, "2000", true},
	{"2200", "Accrued Expenses", accounting.AccountTypeLiability, "2000", false},
	{"3000", "Equity", accounting.AccountTypeEquity, "", false},
	{"3100", "Share Capital", accounting.AccountTypeEquity, "3000", false},
	{"3200", "Retained Earnings", accounting.AccountTypeEquity, "3000", false},
	{"4000", "Revenue", accounting.AccountTypeRevenue, "", false},
	{"4100", "Fuel Sales", accounting.AccountTypeRevenue, "4000", false},
	{"4200", "Dispatch Billing", accounting.AccountTypeRevenue, "4000", true},
	{"5000", "Cost of Goods Sold", accounting.AccountTypeExpense, "", false},
	{"6000", "Operating Expenses", accounting.AccountTypeExpense, "", false},
	{"6100", "Rent Expense", accounting.AccountTypeExpense, "6000", false},
	{"6200", "Insurance Expense", accounting.AccountTypeExpense, "6000", false},
	{"6300", "Salaries", accounting.AccountTypeExpense, "6000", true},
}

var entities = []subledger.Entity{
	{Kind: accounting.SubAccountCustomer, ID: "C-0001", Name: "Walk-in Customer", IsActive: true},
	{Kind: accounting.SubAccountSupplier, ID: "S-0001", Name: "Primary Fuel Supplier", IsActive: true},
	{Kind: accounting.SubAccountEmployee, ID: "E-0001", Name: "Station Attendant", IsActive: true},
	{Kind: accounting.SubAccountBankAccount, ID: "B-0001", Name: "Operating Account", IsActive: true},
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	companies := cfg.LedgerCompanies
	if raw := os.Getenv("SEED_COMPANIES"); raw != "" {
		companies = strings.Split(raw, ",")
	}
	if len(companies) == 0 {
		log.Fatal("no companies to seed: set LEDGER_COMPANIES or SEED_COMPANIES")
	}

	ledger, err := app.OpenLedger(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	for _, company := range companies {
		company = strings.TrimSpace(company)
		if company == "" {
			continue
		}
		fmt.Printf("→ Seeding chart of accounts for %s...\n", company)
		created, err := seedChart(ctx, ledger.Accounts, company)
		if err != nil {
			log.Fatalf("seed accounts %s: %v", company, err)
		}
		fmt.Printf("  %d accounts created\n", created)

		fmt.Printf("→ Seeding sub-ledger directory for %s...\n", company)
		for _, entity := range entities {
			entity.Company = company
			if err := ledger.Directory.Register(ctx, entity); err != nil {
				log.Fatalf("seed entity %s: %v", entity.Ref().Key(), err)
			}
		}
	}
	fmt.Println("✓ Seed complete")
}

func seedChart(ctx context.Context, svc *accounts.Service, company string) (int, error) {
	created := 0
	for _, acc := range chart {
		_, err := svc.Create(ctx, accounts.CreateInput{
			Company:           company,
			Number:            acc.number,
			Name:              acc.name,
			Type:              acc.typ,
			ParentNumber:      acc.parent,
			RequiresSubLedger: acc.subLedger,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, accounting.ErrAccountExists):
		default:
			return created, fmt.Errorf("%s: %w", acc.number, err)
		}
	}
	return created, nil
}
