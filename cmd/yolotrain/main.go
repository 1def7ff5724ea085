// Trains, validates and exports rail safety detection models with the Ultralytics YOLO command
// line, on datasets written by cocoyolo.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is fine, the environment may be set up otherwise.
	_ = godotenv.Load()

	os.Exit(execute(context.Background(), os.Args[1:], nil))
}
