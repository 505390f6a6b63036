package main

import (
	"fmt"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/masomo/attendance/apps/api/echo"
)

func (cli *commandLine) genToken(viewerID, name string) error {
	token, err := echoapi.GenerateToken(cli.conf, echoapi.GetViewerClaims(cli.conf, viewerID, name))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
