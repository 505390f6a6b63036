package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

// validateToken reports every problem of a playback token, the way a session would refuse it.
func (cli *commandLine) validateToken(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening token")
	}
	defer f.Close()

	var token catchup.PlaybackToken
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&token); err != nil {
		return errors.Wrapf(catchup.ErrInvalidToken, "decoding %s: %v", path, err)
	}

	if err := catchup.ValidateToken(token, cli.validate, cli.translator); err != nil {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			for _, fld := range vErr.Fields {
				fmt.Fprintf(cli.out, "  %s: %s\n", fld.Field, fld.Error)
			}
		}
		return err
	}

	fmt.Fprintf(cli.out, "token OK: lesson %s, %.0fs, %d prompt(s), quiz: %t\n",
		token.LessonID, token.DurationSec, len(token.Prompts), token.Quiz != nil)
	return nil
}
