package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/surfgoffdude/optiq/internal/config"
)

func newPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage named configuration presets",
		Long: `Presets are saved under ~/.config/optiq/presets/ so a full run
configuration can be reused across projects.

Examples:
  # Save the current flags as a preset
  optiq run --in ./photos --preset web --save-preset my-project

  # List saved presets
  optiq presets list

  # Show and delete a preset
  optiq presets show my-project
  optiq presets delete my-project`,
	}

	cmd.AddCommand(newPresetsListCmd())
	cmd.AddCommand(newPresetsDeleteCmd())
	cmd.AddCommand(newPresetsShowCmd())
	cmd.AddCommand(newPresetsSaveCmd())

	return cmd
}

func newPresetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := config.ListPresets()
			if err != nil {
				return fmt.Errorf("listing presets: %w", err)
			}

			if len(presets) == 0 {
				fmt.Println("no presets saved")
				fmt.Println()
				fmt.Println("save one with:")
				fmt.Println("  optiq presets save my-project --in ./photos --preset web")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRESET\tJPEG Q\tWEBP Q\tPATH")
			for _, p := range presets {
				preset, jpegQ, webpQ := "-", "-", "-"
				if p.Config != nil && p.Config.Output != nil {
					if p.Config.Output.Preset != "" {
						preset = p.Config.Output.Preset
					}
					if p.Config.Output.JPEGQuality > 0 {
						jpegQ = fmt.Sprintf("%d", p.Config.Output.JPEGQuality)
					}
					if p.Config.Output.WebPQuality > 0 {
						webpQ = fmt.Sprintf("%d", p.Config.Output.WebPQuality)
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, preset, jpegQ, webpQ, p.Path)
			}
			return w.Flush()
		},
	}
}

func newPresetsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a saved preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !config.PresetExists(name) {
				return fmt.Errorf("preset %q not found", name)
			}
			if err := config.DeletePreset(name); err != nil {
				return fmt.Errorf("deleting preset: %w", err)
			}
			fmt.Printf("deleted preset %q\n", name)
			return nil
		},
	}
}

func newPresetsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show a saved preset's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			fc, path, err := config.LoadPreset(name)
			if err != nil {
				return err
			}

			fmt.Printf("preset: %s\n", name)
			fmt.Printf("path: %s\n\n", path)

			if fc.Input != nil && len(fc.Input.Paths) > 0 {
				fmt.Println("input:")
				fmt.Printf("  paths: %v\n", fc.Input.Paths)
			}

			if o := fc.Output; o != nil {
				fmt.Println("output:")
				printIf("  mode: %s\n", o.Mode)
				printIf("  dir: %s\n", o.Dir)
				printIf("  preset: %s\n", o.Preset)
				printIf("  naming_template: %s\n", o.NamingTemplate)
				if o.JPEGQuality > 0 {
					fmt.Printf("  jpeg_quality: %d\n", o.JPEGQuality)
				}
				if o.WebPQuality > 0 {
					fmt.Printf("  webp_quality: %d\n", o.WebPQuality)
				}
				if o.WebPEffort > 0 {
					fmt.Printf("  webp_effort: %d\n", o.WebPEffort)
				}
			}

			if p := fc.Processing; p != nil {
				fmt.Println("processing:")
				printIf("  mode: %s\n", p.Mode)
				if p.Workers > 0 {
					fmt.Printf("  workers: %d\n", p.Workers)
				}
				printIf("  smart_target: %s\n", p.SmartTarget)
				printIf("  speed: %s\n", p.Speed)
			}

			return nil
		},
	}
}

func newPresetsSaveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "save [name]",
		Short: "Save the current run flags (and any loaded config file) as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.SavePreset(args[0], cfg)
			if err != nil {
				return fmt.Errorf("saving preset: %w", err)
			}
			fmt.Printf("saved preset %q to %s\n", args[0], path)
			return nil
		},
	}
	bindRunFlags(cmd.Flags(), &configPath)
	if err := applyConfigFile(scanFlagValue(os.Args[1:], "config")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return cmd
}

func printIf(format, value string) {
	if value != "" {
		fmt.Printf(format, value)
	}
}
