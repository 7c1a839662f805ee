package main

import (
	"github.com/halfdata/gphoto-backup/cmd"
)

func main() {
	cmd.Execute()
}
