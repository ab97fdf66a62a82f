package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bagbot/internal/replay"
)

func newReplayCmd(cfgPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>...",
		Short: "用当前 fusion 配置回放场景文件并报告不符合预期的结果",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLog, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer closeLog()

			failed := 0
			for _, path := range args {
				f, err := replay.Load(path)
				if err != nil {
					return err
				}
				report, err := replay.Run(cmd.Context(), f, cfg.Fusion.ToFusionConfig())
				if err != nil {
					return fmt.Errorf("replay %s: %w", path, err)
				}
				if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
					return err
				}
				failed += report.Failed
			}
			if failed > 0 {
				return fmt.Errorf("%d 个场景不符合预期", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出报告")
	return cmd
}

func printReport(w io.Writer, r replay.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(w, "== %s (%d scenarios, %d failed)\n", r.Name, len(r.Results), r.Failed)
	for _, res := range r.Results {
		status := "ok  "
		if !res.Passed() {
			status = "FAIL"
		}
		outcome := res.Err
		if res.Decision != nil {
			outcome = fmt.Sprintf("%s size=%v harmony=%.1f", res.Decision.FinalCommand, res.Decision.FinalSize, res.Decision.HarmonyScore)
		}
		fmt.Fprintf(w, "  [%s] %s -> %s\n", status, res.Name, outcome)
		for _, m := range res.Mismatches {
			fmt.Fprintf(w, "         %s\n", m)
		}
	}
	fmt.Fprintf(w, "  stats: total=%d executed=%d cancelled=%d aborted=%d avg_harmony=%.1f\n",
		r.Stats.TotalDecisions, r.Stats.Executed, r.Stats.Cancelled, r.Stats.Aborted, r.Stats.AverageHarmony)
	return nil
}
