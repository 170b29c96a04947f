package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	case "sqlite":
		return sqliteTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `name = "relay-node"
chain_id = "chain-a"
http_addr = ":9000"
grpc_addr = ":9090"
cors_origins = ["http://localhost:3000"]
block_time = "5s"
packet_timeout = "300s"

[store]
backend = "memory"

[contracts]
dispatcher = "dispatcher"
echo = "echo"
controller = "controller"
`

const sqliteTemplate = `name = "relay-node-b"
chain_id = "chain-b"
http_addr = ":9001"
grpc_addr = ":9091"
block_time = "5s"

[store]
backend = "sqlite"
path = "chain-b.db"

[contracts]
dispatcher = "dispatcher"
echo = "echo"
`
