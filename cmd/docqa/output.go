package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/service"
)

func printIndexResults(cmd *cobra.Command, results []service.FileResult) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Result.Status != domain.StatusSuccess {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %s (%d chunks stored)\n", r.Path, r.Result.Message, r.Result.Chunks)
			continue
		}
		fmt.Fprintf(out, "OK    %s: %d chunks\n", r.Path, r.Result.Chunks)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

func summarize(results []service.FileResult) string {
	docs, chunks := 0, 0
	for _, r := range results {
		if r.Result.Status == domain.StatusSuccess {
			docs++
			chunks += r.Result.Chunks
		}
	}
	return fmt.Sprintf("Indexed %d/%d documents, %d chunks", docs, len(results), chunks)
}

func printQueryResponse(cmd *cobra.Command, resp domain.QueryResponse, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("query failed: %s", resp.Error)
		}
		return nil
	}
	if resp.Error != "" {
		return fmt.Errorf("query failed: %s", resp.Error)
	}
	fmt.Fprintln(out, resp.Answer)
	if len(resp.Chunks) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, c := range resp.Chunks {
		fmt.Fprintf(out, "  [%d] %s#%d score=%.3f\n      %s\n", i+1, c.DocumentID, c.ChunkIndex, c.Score, c.Text)
	}
	return nil
}
