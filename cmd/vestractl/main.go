package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/kavon2323/vitaius-vestra/cmd/vestractl/commands"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	if err := commands.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
