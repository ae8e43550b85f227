package cmd

import "github.com/spf13/cobra"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "todobase",
		Short: "A todo list on a hosted backend",
		Long: `Todobase lets a user register, sign in and keep a list of todos, optionally
with images, stored in a hosted backend (auth, rows and object storage).`,
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/todobase.yml", "config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
}
