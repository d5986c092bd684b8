package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/stimulus"
)

// oneShot restores the engine, runs fn and saves the result.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, s *session, now time.Time) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	s, err := openSession(ctx, now)
	if err != nil {
		return err
	}
	runErr := fn(ctx, s, now)
	if err := s.close(ctx, now); err != nil {
		log.Warn().Err(err).Msg("state not saved")
	}
	return runErr
}

func stimulusCmd() *cobra.Command {
	var (
		stim     stimulus.Stimulus
		activity string
	)

	cmd := &cobra.Command{
		Use:   "stimulus",
		Short: "Apply one stimulus and print the resulting modifiers",
		Example: `  limbic stimulus --tags joy,compliment --length 320 --entities golang
  limbic stimulus --tags threat --content "the build is on fire"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stim.ActivityType = stimulus.ActivityType(activity)
			return oneShot(cmd, func(ctx context.Context, s *session, now time.Time) error {
				stim.Timestamp = now
				mods, err := s.engine.Apply(ctx, stim)
				if err != nil {
					log.Warn().Err(err).Msg("stimulus partially applied")
				}
				return printJSON(mods)
			})
		},
	}

	cmd.Flags().IntVar(&stim.TextLength, "length", 0, "message length in characters")
	cmd.Flags().StringSliceVar(&stim.SentimentTags, "tags", nil, "sentiment tags (emotions or reactions such as compliment)")
	cmd.Flags().StringSliceVar(&stim.Entities, "entities", nil, "detected entities / topics")
	cmd.Flags().StringVar(&stim.Content, "content", "", "message content to remember")
	cmd.Flags().StringVar(&activity, "activity", string(stimulus.ActivityConversation), "activity type")
	return cmd
}

func activityCmd() *cobra.Command {
	var (
		kind      string
		intensity float64
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Record assistant activity (conversation, command, thinking, system)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, s *session, now time.Time) error {
				err := s.engine.RecordActivity(ctx, stimulus.Activity{
					Type:      stimulus.ActivityType(kind),
					Intensity: intensity,
					Timestamp: now,
				})
				if err != nil {
					return err
				}
				return printJSON(s.engine.Modifiers(now))
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", string(stimulus.ActivityCommand), "activity type")
	cmd.Flags().Float64Var(&intensity, "intensity", 0.5, "activity intensity in [0,1]")
	return cmd
}

func recallCmd() *cobra.Command {
	var (
		k     int
		links []string
	)

	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Retrieve memories congruent with the current mood",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := memory.Query{Text: strings.Join(args, " "), Links: links}
			if q.Text == "" && len(q.Links) == 0 {
				return fmt.Errorf("recall needs a query or --links")
			}
			return oneShot(cmd, func(ctx context.Context, s *session, now time.Time) error {
				return printJSON(s.engine.Recall(ctx, q, k, now))
			})
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringSliceVar(&links, "links", nil, "topic links to match")
	return cmd
}

func interruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt",
		Short: "Abort the running action chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, s *session, now time.Time) error {
				if err := s.engine.Interrupt(ctx, now); err != nil {
					return err
				}
				return printJSON(s.engine.Modifiers(now))
			})
		},
	}
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "trigger <type>",
		Short:     "Start an action chain regardless of motivation",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(chain.Reflection), string(chain.Exploration), string(chain.Creation), string(chain.Organizing), string(chain.SelfImprovement)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, s *session, now time.Time) error {
				c, err := s.engine.StartChain(ctx, chain.Type(args[0]), now)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}
