package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
	"github.com/mohammad-safakhou/ideascope/internal/persist"
	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
	"github.com/mohammad-safakhou/ideascope/internal/report"
	"github.com/spf13/cobra"
)

func runCMD() *cobra.Command {
	var cfgPath string
	var proposalFile string
	var resumePath string
	var auto bool
	var answers []string

	var run = &cobra.Command{
		Use:   "run [proposal]",
		Short: "Analyse a proposal interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			sub, err := submission(args, proposalFile, resumePath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var source interact.AnswerSource
			if auto || len(answers) > 0 {
				source = interact.NewAuto(answers...)
			} else {
				source = interact.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), true)
			}
			svc, err := a.service(source)
			if err != nil {
				return err
			}

			res, perr := svc.Run(ctx, sub)
			a.tel.RecordRun(res)
			return finish(cmd, res, perr)
		},
	}
	run.Flags().StringVarP(&proposalFile, "file", "f", "", "read the proposal from a file")
	run.Flags().StringVar(&resumePath, "resume", "", "result bundle (.json) whose clarified idea and answers are reused")
	run.Flags().BoolVar(&auto, "auto", false, "answer questions automatically with the first suggestion")
	run.Flags().StringArrayVar(&answers, "answer", nil, "scripted answer, repeatable; implies --auto")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return run
}

func submission(args []string, proposalFile, resumePath string) (pipeline.Submission, error) {
	var sub pipeline.Submission
	switch {
	case proposalFile != "":
		data, err := os.ReadFile(proposalFile)
		if err != nil {
			return sub, err
		}
		sub.Proposal = string(data)
	case len(args) == 1:
		sub.Proposal = args[0]
	}
	if resumePath != "" {
		b, err := persist.Read(resumePath)
		if err != nil {
			return sub, err
		}
		if sub.Proposal == "" {
			sub.Proposal = b.Proposal
		}
		sub.Resume = &pipeline.Resume{
			ClarifiedIdea:     b.ClarifiedIdea,
			Transcript:        b.Transcript,
			ValidationAnswers: b.ValidationAnswers,
		}
	}
	if strings.TrimSpace(sub.Proposal) == "" && sub.Resume == nil {
		return sub, fmt.Errorf("a proposal is required: pass it as an argument, --file or --resume")
	}
	return sub, nil
}

func finish(cmd *cobra.Command, res pipeline.Result, persistErr error) error {
	out := cmd.OutOrStdout()
	if !res.Success {
		if errors.Is(res.Fatal, faults.ErrCanceled) || errors.Is(res.Fatal, context.Canceled) {
			fmt.Fprintf(out, "\nRun %s canceled during %s.\n", res.RunID, lastPhase(res))
			return nil
		}
		return fmt.Errorf("run %s failed: %w", res.RunID, res.Fatal)
	}
	md, err := report.Render(report.NewBundle(res))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, md)
	if len(res.Errors) > 0 {
		fmt.Fprintf(out, "%d warning(s) recorded; see the appendix.\n", len(res.Errors))
	}
	return persistErr
}

// lastPhase reads the phase recorded with the fatal error.
func lastPhase(res pipeline.Result) string {
	if n := len(res.Errors); n > 0 {
		return res.Errors[n-1].Phase
	}
	return string(res.State.Phase)
}
