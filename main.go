package main

import (
	"log"

	"analytics-sdk/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
