package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"agent-memory-be/internal/repository/memory"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"
	"agent-memory-be/pkg/acb/builder"
	"agent-memory-be/pkg/acb/invariant"
	"agent-memory-be/pkg/acb/scoring"
	"agent-memory-be/pkg/acb/supplier"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fixture is a request plus the candidate store it runs against.
type fixture struct {
	Request struct {
		TenantID           string       `yaml:"tenant_id"`
		SessionID          string       `yaml:"session_id"`
		Intent             string       `yaml:"intent"`
		Query              string       `yaml:"query"`
		BudgetTokens       int          `yaml:"budget_tokens"`
		IncludeCapsules    bool         `yaml:"include_capsules"`
		IncludeQuarantined bool         `yaml:"include_quarantined"`
		Weights            *acb.Weights `yaml:"weights"`
		History            []acb.Mode   `yaml:"history"`
	} `yaml:"request"`
	Candidates []acb.CandidateItem `yaml:"candidates"`
}

func loadFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if f.Request.TenantID == "" {
		f.Request.TenantID = "local"
	}
	return &f, nil
}

var buildCmd = &cobra.Command{
	Use:   "build <fixture.yaml>",
	Short: "Build a bundle from a candidate fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := loadFixture(args[0])
		if err != nil {
			return err
		}
		res, err := runFixture(cmd, f)
		if err != nil {
			color.New(color.FgRed, color.Bold).Fprintf(cmd.ErrOrStderr(), "build failed: %v\n", err)
			return err
		}
		if outputFormat == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func runFixture(cmd *cobra.Command, f *fixture) (*acb.Result, error) {
	profiles, err := budget.LoadProfiles(profilesPath)
	if err != nil {
		return nil, err
	}

	history := memory.NewModeHistoryRepository(time.Hour)
	req := acb.Request{
		TenantID:           f.Request.TenantID,
		SessionID:          f.Request.SessionID,
		Intent:             f.Request.Intent,
		Query:              f.Request.Query,
		TotalBudget:        f.Request.BudgetTokens,
		IncludeCapsules:    f.Request.IncludeCapsules,
		IncludeQuarantined: f.Request.IncludeQuarantined,
		Weights:            f.Request.Weights,
	}
	for _, m := range f.Request.History {
		if err := history.AppendMode(cmd.Context(), req.HistoryKey(), m); err != nil {
			return nil, err
		}
	}

	store := supplier.NewStatic(nil)
	store.Add(f.Candidates...)

	b := builder.New(builder.Config{
		Supplier:  store,
		History:   history,
		Profiles:  profiles,
		Weights:   acb.DefaultWeights,
		Policy:    scoring.DefaultPolicy(),
		Detectors: invariant.DefaultDetectors(),
	})
	return b.Build(cmd.Context(), req)
}

func printResult(w io.Writer, res *acb.Result) {
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	warn := color.New(color.FgYellow)

	title.Fprintf(w, "Bundle %s\n", res.ID)
	fmt.Fprintf(w, "mode=%s confidence=%.2f tokens=%d/%d reallocations=%d\n",
		res.Provenance.Mode, res.Provenance.Confidence, res.TokensUsed, res.TotalBudget, res.ReallocationCount)
	if res.Degraded {
		warn.Fprintln(w, "degraded: some categories could not be retrieved")
	}

	for _, sec := range res.Sections {
		title.Fprintf(w, "\n[%s] %d/%d tokens\n", sec.Category, sec.TokensUsed, sec.Budget)
		for _, it := range sec.Items {
			marker := " "
			if it.Tier > 0 {
				marker = "*"
			}
			fmt.Fprintf(w, " %s %-12s %.3f  %s\n", marker, it.Item.ID, it.Score, preview(it.Item.Content, 60))
		}
	}

	if len(res.Omissions) > 0 {
		title.Fprintln(w, "\nOmissions")
		for _, o := range res.Omissions {
			dim.Fprintf(w, "  %s %s x%d %v\n", o.Category, o.Reason, o.Count, o.IDs)
		}
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
