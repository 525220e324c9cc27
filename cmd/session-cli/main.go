// ABOUTME: Entry point for the session-cli command line client
// ABOUTME: Dispatches to cobra subcommands for chat, list, delete, and token

package main

func main() {
	Execute()
}
