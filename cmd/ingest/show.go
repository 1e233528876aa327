package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/pkg/client"
)

func runShowRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	var runs []*domain.Run
	if cfg.CacheProxyURL != "" {
		runs, err = client.NewClient(cfg.CacheProxyURL).GetRuns(ctx, runsLimit)
	} else {
		if err := cfg.ValidateStorage(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		st, serr := getStorage(cfg)
		if serr != nil {
			return fmt.Errorf("failed to initialize storage: %w", serr)
		}
		defer st.Close()
		runs, err = st.GetRuns(ctx, runsLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}

	if outputJSON {
		return printJSON(runs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Started", "Batch", "Status", "Assigned", "Cached", "Successful", "Failed", "Bytes"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d/%d", r.Offset, r.BatchSize),
			string(r.Status),
			strconv.Itoa(r.Assigned),
			strconv.Itoa(r.CacheHits),
			strconv.Itoa(r.Successful),
			strconv.Itoa(r.Failed),
			strconv.FormatInt(r.BytesUploaded, 10),
		})
	}
	table.Render()
	return nil
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	org, name := args[0], args[1]
	ctx := context.Background()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.CacheProxyURL == "" {
		if err := cfg.ValidateStorage(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	st, err := openStores(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer st.Close()

	gate := cache.NewGate(st.cache, retry.New(retryPolicy(cfg), nil, nil), nil)
	entry, err := gate.Entry(ctx, org, name)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(entry)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Repository", org + "/" + name})
	table.Append([]string{"Pushed At", entry.PushedAt.Format("2006-01-02 15:04:05Z07:00")})
	table.Append([]string{"Processed At", entry.ProcessedAt.Format("2006-01-02 15:04:05Z07:00")})
	table.Append([]string{"Status", string(entry.Status)})
	table.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
