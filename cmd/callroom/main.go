package main

import "github.com/wilsonzlin/aero/proxy/callroom-relay/internal/cli"

func main() {
	cli.Execute()
}
