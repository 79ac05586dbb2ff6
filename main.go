package main

import "github.com/studyjam/leaderboard-scraper/cmd"

func main() {
	cmd.Execute()
}
