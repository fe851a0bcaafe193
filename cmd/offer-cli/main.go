package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/internal/apiclient"
	"github.com/jogardn/offer-configurator/pkg/models"
)

const usage = `Usage: offer-cli [-url URL] <command>

Commands:
  catalog vehicles|colors|upholsteries|factory-options|accessories
  submit <configuration.json>
  health
`

func main() {
	baseURL := flag.String("url", getEnv("OFFER_SERVICE_URL", "http://localhost:8000"), "offer service base URL")
	verbose := flag.Bool("v", false, "log requests")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.InfoLevel)
	}

	client := apiclient.New(*baseURL, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, client, flag.Args()); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, client *apiclient.Client, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "catalog":
		if len(args) != 2 {
			return fmt.Errorf("catalog needs a list name")
		}
		if args[1] == "vehicles" {
			vehicles, err := client.Vehicles(ctx)
			if err != nil {
				return err
			}
			return printJSON(vehicles)
		}
		items, err := client.Items(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(items)

	case "submit":
		if len(args) != 2 {
			return fmt.Errorf("submit needs a configuration file")
		}
		cfg, err := readConfiguration(args[1])
		if err != nil {
			return err
		}
		resp, err := client.SubmitOffer(ctx, cfg)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "health":
		if err := client.HealthCheck(ctx); err != nil {
			return err
		}
		fmt.Println("healthy")
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// readConfiguration accepts either a bare configuration or the
// {"configuration": ...} request envelope.
func readConfiguration(path string) (models.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Configuration{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var req models.OfferRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.Configuration{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if req.Configuration.VehicleID != "" {
		return req.Configuration, nil
	}

	var cfg models.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return models.Configuration{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
