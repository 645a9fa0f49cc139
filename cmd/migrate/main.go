package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kdimtricp/vingest/internal/database"
)

func main() {
	var (
		host     = flag.String("host", "localhost", "Database host")
		port     = flag.Int("port", 5432, "Database port")
		user     = flag.String("user", "vingest", "Database user")
		password = flag.String("password", "", "Database password")
		dbName   = flag.String("name", "vingest", "Database name")
		sslMode  = flag.String("sslmode", "disable", "PostgreSQL sslmode")
		status   = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	config := database.Config{
		Type:     "postgres",
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Name:     *dbName,
		SSLMode:  *sslMode,
	}

	// Override with environment variables if set
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Host = env
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Name = env
	}

	db, err := database.NewDB(config)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := database.NewMigrator(db.Conn(), config.Type)

	if !*status {
		fmt.Println("Running embedded migrations...")
		if err := migrator.Run(ctx, database.Migrations()); err != nil {
			fatal("Failed to run migrations", err)
		}
		fmt.Println("Migrations completed successfully!")
		return
	}

	if err := migrator.Initialize(ctx); err != nil {
		fatal("Failed to initialize migrator", err)
	}

	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		fatal("Failed to get applied migrations", err)
	}

	migrations, err := migrator.LoadMigrations(database.Migrations())
	if err != nil {
		fatal("Failed to load migrations", err)
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range migrations {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
