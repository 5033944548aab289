package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/config"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	infraLark "github.com/garyjia/controlled-docs/internal/infrastructure/external/lark"
)

// Sends one sample escalation through the configured Lark app, to check
// credentials and recipient addressing without touching the database.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: test-notification [-config path] <receive_id> [receive_id...]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Lark.Enabled() {
		log.Fatal("lark.app_id and lark.app_secret are required")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:          cfg.Lark.AppID,
		AppSecret:      cfg.Lark.AppSecret,
		RequestTimeout: cfg.Lark.RequestTimeout,
	}, logger)
	notifier := infraLark.NewNotifier(infraLark.NewMessageAPI(client, logger), infraLark.NotifierConfig{
		ReceiveIDType: cfg.Lark.ReceiveIDType,
	}, logger)

	msg := port.EscalationMessage{
		Record: &entity.EscalationRecord{
			ID:          "test-notification",
			VersionID:   "test-version",
			DocumentID:  "test-document",
			ProjectID:   "test-project",
			Level:       1,
			NotifyRole:  entity.RoleQAOfficer,
			TriggeredAt: time.Now().UTC(),
		},
		DocumentTitle: "Notification check",
		DocType:       "TEST",
		VersionString: "0.1",
		Recipients:    flag.Args(),
	}

	fmt.Println("Message preview:")
	fmt.Println(infraLark.FormatEscalation(msg))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := notifier.NotifyEscalation(ctx, msg); err != nil {
		log.Fatalf("Delivery failed (%s id type): %v", cfg.Lark.ReceiveIDType, err)
	}
	fmt.Printf("Delivered to %d recipient(s)\n", len(msg.Recipients))
}
