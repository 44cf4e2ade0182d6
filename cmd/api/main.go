package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jun/scandrive/internal/app"
	"github.com/jun/scandrive/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("SCANDRIVE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	application, err := app.NewApp(context.Background(), cfg)
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	lambda.Start(application.HandleRequest)
}
