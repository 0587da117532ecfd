package main

import (
	"os"

	"citypulse.nyc/pulse/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
