package main

import (
	"os"

	"horse.fit/shelf/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
