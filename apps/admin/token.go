package main

import (
	"fmt"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
)

func (cli *commandLine) token(username string, roles []string) error {
	username = core.CleanString(username)
	cleaned := make([]string, 0, len(roles))
	for _, role := range roles {
		role = core.CleanString(role, true /* lower */)
		if !echoapi.IsValidRole(role) {
			return fmt.Errorf("unknown role %q", role)
		}
		cleaned = append(cleaned, role)
	}

	tkn, err := echoapi.GenerateToken(echoapi.GetClaims(username, cleaned, cli.conf), cli.conf)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, tkn)
	return nil
}
