package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/raysh454/mailtrust/internal/cli"
)

var version = "dev"

func main() {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	if err := cli.NewRoot(v).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
