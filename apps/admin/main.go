package main

import (
	"log"
	"os"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
	logsvc "github.com/trezcool/masomo/attendance/services/logger"
)

func main() {
	std := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(false)

	// start CLI
	validate, translator := core.NewValidator()
	catchup.InitValidators(validate, translator)
	cli := commandLine{
		out:        os.Stdout,
		conf:       conf,
		logger:     logger,
		validate:   validate,
		translator: translator,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
