package main

import (
	"github.com/joho/godotenv"
	"github.com/kestrelworks/agentchat/cmd"
)

func main() {
	// Bearer tokens and overrides commonly live in a local .env
	godotenv.Load()

	cmd.Execute()
}
