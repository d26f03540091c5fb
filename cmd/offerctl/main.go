package main

import (
	"os"

	"github.com/cuongbtq/offer-importer/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
