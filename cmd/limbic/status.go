package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/limbic/internal/config"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/engine"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current emotional state, boredom and live chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			now := time.Now()
			s, err := openSession(ctx, now)
			if err != nil {
				return err
			}
			defer s.release()
			defer s.engine.Close()

			mods := s.engine.Modifiers(now)
			if asJSON {
				return printJSON(mods)
			}
			fmt.Println(renderStatus(mods))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the modifiers as JSON")
	return cmd
}

func renderStatus(m engine.Modifiers) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %.2f", m.Dominant, m.Intensity)))
	b.WriteString("  " + m.Mood.Label + "\n\n")

	for _, e := range emotion.Primaries {
		b.WriteString(row(string(e), m.Emotions[e]))
	}
	b.WriteString("\n")
	b.WriteString(row("boredom", m.Boredom))
	if m.Suggestion != "" {
		b.WriteString(labelStyle.Render("suggests") + warnStyle.Render(m.Suggestion) + "\n")
	}

	if derived := derivedNames(m); derived != "" {
		b.WriteString(labelStyle.Render("feeling") + derived + "\n")
	}
	b.WriteString(fmt.Sprintf("%s%d\n", labelStyle.Render("memories"), m.Memories))

	for _, c := range m.Chains {
		b.WriteString(labelStyle.Render("chain") + fmt.Sprintf("%s %s (%s)\n", c.Type, c.State, c.Step))
	}

	t := m.Traits
	b.WriteString(labelStyle.Render("traits") + fmt.Sprintf("warmth %.2f  curiosity %.2f  assertive %.2f  playful %.2f  caution %.2f",
		t.Warmth, t.Curiosity, t.Assertiveness, t.Playfulness, t.Caution))

	return panelStyle.Render(b.String())
}

func row(label string, v float64) string {
	width := int(v*20 + 0.5)
	bar := strings.Repeat("█", width) + strings.Repeat("·", 20-width)
	return labelStyle.Render(label) + barStyle.Render(bar) + fmt.Sprintf(" %.2f\n", v)
}

func derivedNames(m engine.Modifiers) string {
	all := append(append([]emotion.Derived(nil), m.Secondary...), m.Tertiary...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Level > all[j].Level })
	var names []string
	for i, d := range all {
		if i == 4 {
			break
		}
		names = append(names, d.Name)
	}
	return strings.Join(names, ", ")
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(configPath())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Overwrite the configuration file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Printf("wrote defaults to %s\n", path)
			return nil
		},
	})

	return cmd
}
