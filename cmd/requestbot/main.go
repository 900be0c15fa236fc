package main

import (
	"log"

	"github.com/m3rciful/requestbot/app"
	"github.com/m3rciful/requestbot/core/bootstrap"
	corecmd "github.com/m3rciful/requestbot/core/cmd"
	coreconfig "github.com/m3rciful/requestbot/core/config"
)

type carrier struct {
	cfg *coreconfig.Config
}

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return nil, err
			}
			return carrier{cfg: cfg}, nil
		},
		Bootstrap: func(c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			res, err := bootstrap.Run(bootstrap.Options{Config: c.CoreConfig()})
			if err != nil {
				return nil, err
			}
			return app.New(c.CoreConfig(), res.DB), nil
		},
	})
	if err != nil {
		log.Fatalf("requestbot: %v", err)
	}
}
