package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ___                __        __    _ _      _   
 |_ _|_ __ ___  _ __ \ \      / /_ _| | | ___| |_ 
  | || '__/ _ \| '_ \ \ \ /\ / / _` + "`" + ` | | |/ _ \ __|
  | || | | (_) | | | | \ V  V / (_| | | |  __/ |_ 
 |___|_|  \___/|_| |_|  \_/\_/ \__,_|_|_|\___|\__|

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Mina Wallet Core - Version %s (%s)\x1b[0m\n\n", Version, commit)
}
