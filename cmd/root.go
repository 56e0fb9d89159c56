package cmd

import "github.com/spf13/cobra"

// Version is overridden at build time with -ldflags.
var Version = "1.0.0"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "salonbook",
		Short:         "SalonBook: WhatsApp appointment booking for salons",
		Long:          "salonbook runs the WhatsApp booking bot that walks customers through choosing a stylist, a date, a time and services, then records the appointment.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newChatCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte("salonbook " + Version + "\n"))
			return err
		},
	}
}
