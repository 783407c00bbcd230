package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) newInfoCmd() *cobra.Command {
	var press string

	cmd := &cobra.Command{
		Use:   "info <engine-path>",
		Short: "Print the options an engine declares",
		Long: `Start the engine at <engine-path>, run the USI handshake and print the
declared name, author and options as YAML. Results are cached for
cache.engine_info_ttl.

With --press, send "setoption name <button>" to a fresh engine process
instead, for buttons such as ClearHash that act on engine files.

Examples:
  usibridge info /opt/engines/YaneuraOu
  usibridge info /opt/engines/YaneuraOu --press EvalSave`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.newRegistry()
			defer func() { _ = reg.Close() }()

			if press != "" {
				if err := reg.PressButton(cmd.Context(), args[0], press); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "pressed %s\n", press)
				return err
			}

			desc, err := reg.QueryEngine(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(desc)
			if err != nil {
				return fmt.Errorf("encoding engine info: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&press, "press", "", "press the named button option instead of printing info")
	return cmd
}
