package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"travel-gateway/handler"
	"travel-gateway/internal/app"
	"travel-gateway/internal/config"
	"travel-gateway/internal/usage"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:           "travel-gateway",
		Short:         "Travel planning gateway over text, weather and image providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default ./.env when present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "lambda",
			Short: "Run as an AWS Lambda function behind API Gateway",
			RunE:  runLambda,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print the persisted usage counters",
			RunE:  runStats,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	fxApp := fx.New(
		fx.Supply(cfg),
		app.Module,
		fx.Invoke(app.RegisterHTTPServer),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}
	fxApp.Run()
	return nil
}

func runLambda(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	var engine *gin.Engine
	fxApp := fx.New(
		fx.Supply(cfg),
		app.Module,
		fx.Populate(&engine),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(ctx); err != nil {
		return err
	}

	h, err := handler.NewHandler(engine)
	if err != nil {
		return err
	}
	lambda.Start(h.Handle)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	var store usage.Store
	fxApp := fx.New(
		fx.Supply(cfg),
		app.StorageModule,
		fx.Populate(&store),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}
	return printStats(cmd.Context(), store, cmd.OutOrStdout())
}

func printStats(ctx context.Context, store usage.Store, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stats, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load usage stats: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"totalQueries":             stats.TotalQueries,
		"topDestinations":          usage.TopDestinations(stats, 5),
		"mostRecentResetTimestamp": stats.LastReset.UTC().Format(time.RFC3339),
	})
}
