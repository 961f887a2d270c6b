package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <station>",
	Short: "Lists live departures for a station",
	Args:  cobra.ExactArgs(1),
	RunE:  departures,
}

func init() {
	rootCmd.AddCommand(departuresCmd)
}

func departures(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	service, store, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := service.Departures(context.Background(), args[0])
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("no departures")
		return nil
	}

	for _, d := range list {
		fmt.Printf("%3dm  %-24s platform %s  %s line, %d cars\n",
			d.Minutes, d.Destination, d.Platform, d.Color, d.Length)
	}

	return nil
}
