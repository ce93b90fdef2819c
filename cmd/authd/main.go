package main

import (
	"log"

	"github.com/christensenjo/lucia-auth/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
