// Command medchat is the terminal client for the MedChat assistant.
package main

import "github.com/medchat-dev/medchat/internal/cli"

func main() {
	cli.Execute()
}
