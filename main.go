package main

import "github.com/wingscash/books-gateway/cmd"

func main() {
	cmd.Execute()
}
