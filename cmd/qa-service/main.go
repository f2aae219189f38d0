package main

import (
	"fmt"
	"os"

	"github.com/askloop/askloop/server/qaservice"
)

func main() {
	if err := qaservice.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
