// Command relayd serves a JSON-RPC middleware pipeline built from a config
// file over stdio, HTTP or WebSocket.
//
// Usage:
//
//	relayd -config relay.yaml
//
// Without -config the file is discovered from RELAY_CONFIG, ./relay.yaml,
// ./relay.toml and /etc/relay/relay.yaml, in that order.
package main

import (
	"flag"

	"go.uber.org/fx"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	fx.New(Module(*configPath)).Run()
}
