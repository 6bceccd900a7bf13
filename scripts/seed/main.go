package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"

	"storyadmin/internal/config"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Command-line flags
var (
	authorsCount = flag.Int("authors", 40, "Number of authors to create in the core DB")
	leadsCount   = flag.Int("leads", 25, "Number of leads to create in the workflow DB")
	clearData    = flag.Bool("clear", false, "Clear existing seed data before inserting")
	showHelp     = flag.Bool("help", false, "Show usage information")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	printInfo("=== Story Admin Database Seeder ===\n")

	cfg, err := config.Load()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	// Recipients live in two databases: authors in the core product DB,
	// leads in the marketing workflow DB.
	coreDB := mustOpen("core", cfg.CoreDB.DSN())
	defer coreDB.Close()
	workflowDB := mustOpen("workflow", cfg.WorkflowDB.DSN())
	defer workflowDB.Close()

	if *clearData {
		if err := clearSeedData(coreDB, workflowDB); err != nil {
			printError(fmt.Sprintf("Failed to clear seed data: %v", err))
			os.Exit(1)
		}
	}

	authorsCreated, err := seedAuthors(coreDB, *authorsCount)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed authors: %v", err))
		os.Exit(1)
	}

	leadsCreated, err := seedLeads(workflowDB, *leadsCount)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed leads: %v", err))
		os.Exit(1)
	}

	printInfo("\n=== Seeding Summary ===")
	printSuccess(fmt.Sprintf("✓ Authors created: %d", authorsCreated))
	printSuccess(fmt.Sprintf("✓ Leads created: %d", leadsCreated))
	printInfo("\nSeeding completed successfully!")
}

func mustOpen(name, dsn string) *sql.DB {
	printInfo(fmt.Sprintf("Connecting to %s database...", name))
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		printError(fmt.Sprintf("Failed to open %s database connection: %v", name, err))
		os.Exit(1)
	}
	if err := db.Ping(); err != nil {
		printError(fmt.Sprintf("Failed to ping %s database: %v", name, err))
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("✓ Connected to %s database", name))
	return db
}

// clearSeedData removes rows with the seeder's email pattern
func clearSeedData(coreDB, workflowDB *sql.DB) error {
	printWarning("Clearing existing seed data...")

	if _, err := coreDB.Exec("DELETE FROM authors WHERE email LIKE 'seed.author.%@example.com'"); err != nil {
		return fmt.Errorf("failed to delete authors: %w", err)
	}
	if _, err := workflowDB.Exec("DELETE FROM leads WHERE email LIKE 'seed.lead.%@example.com'"); err != nil {
		return fmt.Errorf("failed to delete leads: %w", err)
	}

	printSuccess("✓ Seed data cleared\n")
	return nil
}

// seedAuthors generates registered authors with varied locales, preference
// sets, activity, and the occasional missing locale or unverified email.
func seedAuthors(db *sql.DB, count int) (int, error) {
	printInfo(fmt.Sprintf("Seeding %d authors...", count))

	locales := []string{"en-US", "en-GB", "de-DE", "fr-FR", "es-ES", "pt-BR", "ja-JP"}
	countries := []string{"US", "GB", "DE", "FR", "ES", "BR", "JP", "CA", "AU"}
	plans := []string{"free", "starter", "pro", "studio"}
	preferenceSets := [][]string{
		{"news", "inspiration"},
		{"news"},
		{"inspiration", "product"},
		{"news", "inspiration", "product", "account"},
		{"account"},
	}

	created := 0
	for i := 1; i <= count; i++ {
		email := fmt.Sprintf("seed.author.%03d@example.com", i)

		var locale *string
		if i%8 != 0 { // some authors never set a locale
			locale = stringPtr(locales[i%len(locales)])
		}

		var lastActive *time.Time
		if i%5 != 0 {
			lastActive = timePtr(time.Now().AddDate(0, 0, -(i % 45)))
		}

		query := `
			INSERT INTO authors
				(email, preferred_locale, country, last_active_at, stories_generated,
				credit_balance, subscription_plan, email_verified, notification_preference)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (email) DO NOTHING
		`

		result, err := db.Exec(query,
			email,
			locale,
			countries[i%len(countries)],
			lastActive,
			(i*7)%120,
			(i*13)%500,
			plans[i%len(plans)],
			i%6 != 0,
			pq.Array(preferenceSets[i%len(preferenceSets)]),
		)
		if err != nil {
			return created, fmt.Errorf("failed to insert author %s: %w", email, err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected > 0 {
			created++
		}
	}

	printSuccess(fmt.Sprintf("✓ Seeded %d authors (skipped %d existing)", created, count-created))
	return created, nil
}

// seedLeads generates marketing leads including suppressed statuses, so the
// estimator's suppression filter has something to exclude.
func seedLeads(db *sql.DB, count int) (int, error) {
	printInfo(fmt.Sprintf("Seeding %d leads...", count))

	languages := []string{"en-US", "de-DE", "fr-FR", "es-ES", "it-IT"}
	countries := []string{"US", "DE", "FR", "ES", "IT", "NL"}
	sources := []string{"landing_page", "webinar", "referral", "content_download"}
	statuses := []string{"active", "active", "active", "unsub", "hard_bounce"}

	created := 0
	for i := 1; i <= count; i++ {
		email := fmt.Sprintf("seed.lead.%03d@example.com", i)

		var language *string
		if i%7 != 0 {
			language = stringPtr(languages[i%len(languages)])
		}

		var lastContacted *time.Time
		if i%3 == 0 {
			lastContacted = timePtr(time.Now().AddDate(0, 0, -(i % 30)))
		}

		query := `
			INSERT INTO leads
				(email, language, country, source, email_status, last_contacted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (email) DO NOTHING
		`

		result, err := db.Exec(query,
			email,
			language,
			countries[i%len(countries)],
			sources[i%len(sources)],
			statuses[i%len(statuses)],
			lastContacted,
		)
		if err != nil {
			return created, fmt.Errorf("failed to insert lead %s: %w", email, err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected > 0 {
			created++
		}
	}

	printSuccess(fmt.Sprintf("✓ Seeded %d leads (skipped %d existing)", created, count-created))
	return created, nil
}

// Helper functions

func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func printSuccess(msg string) {
	fmt.Printf("%s%s%s\n", colorGreen, msg, colorReset)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, msg, colorReset)
}

func printInfo(msg string) {
	fmt.Printf("%s%s%s\n", colorCyan, msg, colorReset)
}

func printWarning(msg string) {
	fmt.Printf("%s%s%s\n", colorYellow, msg, colorReset)
}

func printUsage() {
	printInfo("=== Story Admin Database Seeder ===\n")
	fmt.Println("Usage: go run scripts/seed [flags]")
	fmt.Println("\nFlags:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  go run scripts/seed")
	fmt.Println("  go run scripts/seed -authors 100 -leads 50")
	fmt.Println("  go run scripts/seed -clear")
}
