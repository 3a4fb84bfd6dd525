package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/panam-dodia/NeuralLense/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
