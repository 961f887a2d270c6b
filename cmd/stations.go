package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Lists all stations on the live feed",
	Args:  cobra.NoArgs,
	RunE:  stations,
}

func init() {
	rootCmd.AddCommand(stationsCmd)
}

func stations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	service, store, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := service.Stations(context.Background())
	if err != nil {
		return err
	}

	for _, st := range list {
		fmt.Printf("%s: %s\n", st.Abbr, st.Name)
	}

	return nil
}
