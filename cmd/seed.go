package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"github.com/spkg/bom"

	"bartwatch.dev/relay/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed <stations.csv>",
	Short: "Imports station metadata from a CSV file",
	Long:  "Upserts stations from a CSV export into the store without touching the live feed.",
	Args:  cobra.ExactArgs(1),
	RunE:  seed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// StationCSV is a row of the station metadata export. Exports from
// spreadsheet tools often carry a UTF-8 BOM, which the reader strips.
type StationCSV struct {
	Abbr   string `csv:"abbr"`
	Name   string `csv:"name"`
	City   string `csv:"city"`
	County string `csv:"county"`
	State  string `csv:"state"`
	ZIP    string `csv:"zipcode"`
}

func seed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	rows := []*StationCSV{}
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return fmt.Errorf("unmarshaling stations csv: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, row := range rows {
		if row.Abbr == "" {
			return fmt.Errorf("empty abbr for station '%s'", row.Name)
		}
		err := store.UpsertStation(ctx, &model.Station{
			ID:     row.Abbr,
			Name:   row.Name,
			City:   row.City,
			County: row.County,
			State:  row.State,
			ZIP:    row.ZIP,
		})
		if err != nil {
			return fmt.Errorf("upserting station %s: %w", row.Abbr, err)
		}
	}

	fmt.Printf("seeded %d stations\n", len(rows))
	return nil
}
