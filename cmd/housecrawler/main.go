// Command housecrawler scrapes house and guildhall listings for every game
// world and stores them in Postgres or as JSON snapshots.
package main

import "github.com/JakeFAU/tibia-housing-crawler/cmd"

func main() {
	cmd.Execute()
}
