package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"rnav-scraper/correction"
	"rnav-scraper/fetcher"
	"rnav-scraper/hotels"
	"rnav-scraper/models"
	"rnav-scraper/scheduler"

	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var (
		all       bool
		replayDir string
		correct   bool
	)

	cmd := &cobra.Command{
		Use:   "scrape [province...]",
		Short: "Scrape the agency directory for one or more provinces",
		Long: `Scrape the agency directory for the given provinces, one run after the
other. Without arguments a numbered province menu is shown.`,
		Example: `  rnav-scraper scrape Chaco
  rnav-scraper scrape "Entre Ríos" Misiones --correct=false
  rnav-scraper scrape --all
  rnav-scraper scrape Chaco --replay testdata/chaco`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prompter := correction.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

			a, err := newApp(ctx, prompter)
			if err != nil {
				return err
			}
			defer a.Close()

			keys := args
			if all {
				keys = models.Provinces
			}
			if len(keys) == 0 {
				key, err := chooseProvince(prompter, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if key == "" {
					return nil
				}
				keys = []string{key}
			}

			if !cmd.Flags().Changed("correct") {
				correct = a.cfg.Correction.Prompt
			}
			runner, err := a.runner(replayDir, correct)
			if err != nil {
				return err
			}

			reports, err := runner.RunBatch(ctx, keys)
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), scheduler.FormatSummary(reports))
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Scrape every province")
	cmd.Flags().StringVar(&replayDir, "replay", "", "Replay saved result pages from this directory instead of opening a browser")
	cmd.Flags().BoolVar(&correct, "correct", true, "Offer to correct invalid emails after each run (defaults to correction.prompt)")
	return cmd
}

func newCorrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct <province>",
		Short: "Correct the invalid emails stored for the latest run of a province",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prompter := correction.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

			a, err := newApp(ctx, prompter)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.db == nil {
				return errors.New("correct needs the database to be enabled (database.enabled or DATABASE_URL)")
			}

			groupKey := args[0]
			rejections, err := a.db.LatestRejections(ctx, groupKey)
			if err != nil {
				return err
			}
			if len(rejections) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No hay correos inválidos pendientes para %s\n", groupKey)
				return nil
			}

			w, err := a.workflow()
			if err != nil {
				return err
			}
			res, err := w.Run(ctx, groupKey, rejections)
			if err != nil {
				return err
			}
			if err := a.db.ResolveRejections(ctx, groupKey, res.Resolved); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %d registros corregidos, %d correos inválidos sin resolver\n",
				groupKey, res.Corrected, len(res.Unresolved))
			return nil
		},
	}
}

func newProvincesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provinces",
		Short: "List the provinces accepted by scrape",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printProvinceMenu(cmd.OutOrStdout(), false)
		},
	}
}

func newHotelsCmd() *cobra.Command {
	var (
		filialID int
		list     bool
	)

	cmd := &cobra.Command{
		Use:   "hotels",
		Short: "Scrape the AHTRA hotel directory for one branch",
		Example: `  rnav-scraper hotels --list
  rnav-scraper hotels --filial 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, id := range models.FilialIDs() {
					fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", id, models.Filiales[id])
				}
				return nil
			}
			if _, ok := models.Filiales[filialID]; !ok {
				return fmt.Errorf("unknown filial %d, see --list", filialID)
			}

			ctx := cmd.Context()
			a, err := newBaseApp()
			if err != nil {
				return err
			}
			defer a.Close()

			hc := a.cfg.Hotels
			cf, err := fetcher.NewCollyFetcher(hc.RequestDelay, hc.RequestTimeout, a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			found, err := hotels.NewScraper(cf, hc.BaseURL, a.logger).Scrape(ctx, filialID)
			if err != nil && len(found) == 0 {
				return err
			}
			path, werr := hotels.WriteCSV(hc.OutputDir, filialID, found)
			if werr != nil {
				return werr
			}
			a.logger.Infof("Saved %d hotels to %s in %s", len(found), path, time.Since(start).Round(time.Second))
			fmt.Fprintf(cmd.OutOrStdout(), "%d hoteles guardados en %s\n", len(found), path)
			return err
		},
	}

	cmd.Flags().IntVar(&filialID, "filial", 0, "AHTRA branch ID")
	cmd.Flags().BoolVar(&list, "list", false, "List the AHTRA branches")
	return cmd
}

// chooseProvince shows the province menu and returns the chosen name,
// or "" when the user picks 0 to quit
func chooseProvince(p *correction.TerminalPrompter, out io.Writer) (string, error) {
	for {
		printProvinceMenu(out, true)
		fmt.Fprint(out, "\nSeleccione una provincia: ")

		line, err := p.ReadLine()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("read choice: %w", err)
		}

		key, ok := provinceByChoice(line)
		if ok {
			return key, nil
		}
		fmt.Fprintln(out, "Opción inválida. Intente nuevamente.")
	}
}

// provinceByChoice maps a menu answer to a province; "0" quits
func provinceByChoice(answer string) (string, bool) {
	n, err := strconv.Atoi(answer)
	if err != nil || n < 0 || n > len(models.Provinces) {
		return "", false
	}
	if n == 0 {
		return "", true
	}
	return models.Provinces[n-1], true
}

func printProvinceMenu(out io.Writer, withExit bool) {
	for i, name := range models.Provinces {
		fmt.Fprintf(out, "%2d. %s\n", i+1, name)
	}
	if withExit {
		fmt.Fprintln(out, " 0. Salir")
	}
}
