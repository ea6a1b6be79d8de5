package main

import "paperbill/go_backend/internal/app"

func main() {
	app.Run()
}
