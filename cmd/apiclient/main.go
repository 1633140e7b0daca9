package main

import "github.com/jrsteele09/go-api-client/cmd/apiclient/cmd"

func main() {
	cmd.Execute()
}
