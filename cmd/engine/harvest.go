package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/events"
)

var (
	harvestFormat  string
	harvestHeadful bool
	harvestJSONOut bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest <query>",
	Short: "Run one search in the foreground",
	Long: `Runs a single search to completion, printing progress lines as they happen.
The first interrupt asks the job to stop at its next checkpoint; whatever was
collected so far is still written.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHarvest,
}

func init() {
	f := harvestCmd.Flags()
	f.StringVarP(&harvestFormat, "format", "f", "", "excel|csv|json (default: output.default_format)")
	f.BoolVar(&harvestHeadful, "show-browser", false, "run Chrome with a visible window")
	f.BoolVar(&harvestJSONOut, "json", false, "print the final status as JSON")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.config()

	var format domain.OutputFormat
	if harvestFormat != "" {
		if format, err = domain.ParseOutputFormat(harvestFormat); err != nil {
			return err
		}
	}
	def, _ := domain.ParseOutputFormat(cfg.Output.DefaultFormat)
	job, err := domain.NewSearchJob(strings.Join(args, " "), format, cfg.Browser.Headless && !harvestHeadful, def)
	if err != nil {
		return err
	}

	ch := a.hub.Subscribe()
	defer a.hub.Unsubscribe(ch)

	mgr := a.newManager()
	st, err := mgr.Submit(job)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	stderr := cmd.ErrOrStderr()
loop:
	for {
		select {
		case <-done:
			break loop
		case <-sig:
			fmt.Fprintln(stderr, "stopping after the current step...")
			_, _ = mgr.Cancel(st.ID)
		case msg := <-ch:
			var ev events.Event
			if json.Unmarshal([]byte(msg), &ev) != nil || ev.Type != events.TypeProgress {
				continue
			}
			var p struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(ev.Data, &p) == nil {
				fmt.Fprintln(stderr, p.Message)
			}
		}
	}

	final, err := mgr.Get(st.ID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if harvestJSONOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(final)
	} else {
		fmt.Fprintf(out, "job %s: %s, %d records\n", final.ID, final.State, final.Records)
		for _, f := range final.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	if final.State == domain.StatusError {
		return fmt.Errorf("harvest failed: %s", final.Error)
	}
	return nil
}
