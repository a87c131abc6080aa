package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

func main() {
	rootCmd := &cobra.Command{Use: "stat7"}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(experimentsCmd())
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}
