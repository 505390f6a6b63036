package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	out        io.Writer
	conf       *core.Config
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  validatetoken -file TOKEN.json - check a playback token before it is served")
	fmt.Fprintln(cli.out, "  replay -catalog FILE -lesson ID [-viewer ID] -script STEPS - replay a viewing session on a simulated clock")
	fmt.Fprintln(cli.out, "  gentoken -viewer ID [-name NAME] - generate an API token for a student")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	validateTokenCmd := cli.flagSet("validatetoken")
	validateTokenFile := validateTokenCmd.String("file", "", "Path of the playback token (JSON).")

	replayCmd := cli.flagSet("replay")
	replayCatalog := replayCmd.String("catalog", cli.conf.Attendance.CatalogPath, "Path of the lesson catalog (YAML).")
	replayLesson := replayCmd.String("lesson", "", "The lesson to watch.")
	replayViewer := replayCmd.String("viewer", "student-1", "The student watching.")
	replayScript := replayCmd.String("script", "", "Comma separated steps: "+scriptHelp)

	genTokenCmd := cli.flagSet("gentoken")
	genTokenViewer := genTokenCmd.String("viewer", "", "The student's id.")
	genTokenName := genTokenCmd.String("name", "", "The student's display name.")

	switch args[1] {
	case "validatetoken":
		if err := parse(validateTokenCmd, args[2:]); err != nil {
			return err
		}
		if *validateTokenFile == "" {
			validateTokenCmd.Usage()
			return errHelp
		}
		return cli.validateToken(*validateTokenFile)
	case "replay":
		if err := parse(replayCmd, args[2:]); err != nil {
			return err
		}
		if *replayLesson == "" || *replayScript == "" || *replayCatalog == "" {
			replayCmd.Usage()
			return errHelp
		}
		steps, err := parseScript(*replayScript)
		if err != nil {
			return err
		}
		viewer := catchup.Viewer{ID: core.CleanString(*replayViewer)}
		return cli.replay(*replayCatalog, core.CleanString(*replayLesson), viewer, steps)
	case "gentoken":
		if err := parse(genTokenCmd, args[2:]); err != nil {
			return err
		}
		if core.CleanString(*genTokenViewer) == "" {
			genTokenCmd.Usage()
			return errHelp
		}
		return cli.genToken(core.CleanString(*genTokenViewer), *genTokenName)
	default:
		cli.printUsage()
		return errHelp
	}
}
