package main

import "github.com/shouni/go-link-titles/cmd"

func main() {
	cmd.Execute()
}
