package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"booklending/internal/app"
	"booklending/migrations"
)

func main() {
	storageDriver := flag.String("storage", "clickhouse", "storage backend to start: clickhouse or postgres")
	flag.Parse()

	ctx := context.Background()

	var (
		container testcontainers.Container
		err       error
	)
	switch *storageDriver {
	case "clickhouse":
		container, err = startClickHouse(ctx)
	case "postgres":
		container, err = startPostgres(ctx)
	default:
		log.Fatalf("Unknown storage backend: %s", *storageDriver)
	}
	if err != nil {
		log.Fatalf("Failed to start %s: %v", *storageDriver, err)
	}

	// Ensure container cleanup on exit
	defer func() {
		log.Printf("Stopping %s container...", *storageDriver)
		if err := container.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("WEBHOOK_MODE", "false")
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}

	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN not set. Only the HTTP API will be available.")
	}

	log.Printf("Starting application with %s backend...", *storageDriver)
	fmt.Println()

	application, err := app.New()
	if err != nil {
		log.Printf("Failed to create application: %v", err)
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := application.Run(); err != nil {
		log.Printf("Application error: %v", err)
	}
}

func startClickHouse(ctx context.Context) (testcontainers.Container, error) {
	log.Println("Starting ClickHouse testcontainer...")

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		return container, fmt.Errorf("failed to get container port: %w", err)
	}
	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	dsn := fmt.Sprintf("clickhouse://default:devpassword@%s:%s/default", host, port.Port())
	if err := migrate("clickhouse", dsn); err != nil {
		return container, err
	}

	os.Setenv("STORAGE_DRIVER", "clickhouse")
	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	return container, nil
}

func startPostgres(ctx context.Context) (testcontainers.Container, error) {
	log.Println("Starting Postgres testcontainer...")

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lending"),
		postgres.WithUsername("lending"),
		postgres.WithPassword("devpassword"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, err
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, fmt.Errorf("failed to get connection string: %w", err)
	}
	log.Printf("Postgres started at %s", dsn)

	if err := migrate("postgres", dsn); err != nil {
		return container, err
	}

	os.Setenv("STORAGE_DRIVER", "postgres")
	os.Setenv("POSTGRES_DSN", dsn)
	return container, nil
}

func migrate(dialect, dsn string) error {
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	defer db.Close()

	if err := migrations.Up(db, dialect); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
