package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "jachat-services",
	Level: hclog.LevelFromString("INFO"),
})
