package main

import "talkdrove/internal/app"

func main() {
	app.Run()
}
