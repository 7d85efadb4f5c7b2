package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"usbdrop/services/cli"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var apiBase string

	cmd := &cobra.Command{
		Use:           "dropctl",
		Short:         "Manage usbdrop deception drives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&apiBase, "api", defaultAPIBase(), "Base URL of the usbdrop API")

	cmd.AddCommand(newDrivesCommand(&apiBase))
	cmd.AddCommand(newProfilesCommand(&apiBase))
	return cmd
}

func defaultAPIBase() string {
	if v := os.Getenv("USBDROP_API"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func newClient(apiBase *string) (*cli.Client, error) {
	return cli.NewClient(*apiBase, 2*time.Minute)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newDrivesCommand(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drives",
		Short: "Drive lifecycle operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newDrivesCreateCommand(apiBase))
	cmd.AddCommand(newDrivesListCommand(apiBase))
	cmd.AddCommand(newDrivesPrepareCommand(apiBase))
	cmd.AddCommand(newDrivesDownloadCommand(apiBase))
	cmd.AddCommand(newDrivesDeployCommand(apiBase))
	cmd.AddCommand(newDrivesRecoverCommand(apiBase))
	return cmd
}

func newDrivesCreateCommand(apiBase *string) *cobra.Command {
	var req cli.CreateDriveRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			drive, err := client.CreateDrive(commandContext(cmd), req)
			if err != nil {
				return err
			}
			fmt.Printf("created drive %s (%s)\n", drive.UniqueCode, drive.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "Campaign id (defaults to the shared campaign)")
	cmd.Flags().StringVar(&req.ProfileID, "profile", "", "Profile id to provision from")
	cmd.Flags().StringVar(&req.Label, "label", "", "Physical label written on the drive")
	cmd.Flags().StringVar(&req.Brand, "brand", "", "Drive brand")
	cmd.Flags().StringVar(&req.Capacity, "capacity", "", "Drive capacity, e.g. 16GB")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Free-form notes")
	return cmd
}

func newDrivesListCommand(apiBase *string) *cobra.Command {
	var status, campaign string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drives",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			drives, err := client.ListDrives(commandContext(cmd), status, campaign)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tSTATUS\tLABEL\tCREATED")
			for _, d := range drives {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.UniqueCode, d.Status, d.Label, d.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by lifecycle status")
	cmd.Flags().StringVar(&campaign, "campaign", "", "Filter by campaign id")
	return cmd
}

func newDrivesPrepareCommand(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare <code>",
		Short: "Provision tokens for a drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			drive, err := client.GetDriveByCode(ctx, args[0])
			if err != nil {
				return err
			}
			manifest, err := client.PrepareDrive(ctx, drive.ID.String())
			if err != nil {
				return err
			}
			fmt.Printf("prepared drive %s\n%s\n", drive.UniqueCode, manifest)
			return nil
		},
	}
	return cmd
}

func newDrivesDownloadCommand(apiBase *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <code>",
		Short: "Download the drive's content package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			drive, err := client.GetDriveByCode(ctx, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = drive.UniqueCode + ".zip"
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := client.DownloadPackage(ctx, drive.ID.String(), f); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Destination zip path (defaults to <code>.zip)")
	return cmd
}

func newDrivesDeployCommand(apiBase *string) *cobra.Command {
	var (
		req      cli.DeployRequest
		lat, lon float64
	)

	cmd := &cobra.Command{
		Use:   "deploy <code>",
		Short: "Mark a drive as deployed at a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("lat") {
				req.Latitude = &lat
			}
			if cmd.Flags().Changed("lon") {
				req.Longitude = &lon
			}

			ctx := commandContext(cmd)
			drive, err := client.GetDriveByCode(ctx, args[0])
			if err != nil {
				return err
			}
			deployment, err := client.DeployDrive(ctx, drive.ID.String(), req)
			if err != nil {
				return err
			}
			fmt.Printf("deployed drive %s at %s\n", drive.UniqueCode, deployment.DeployedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Deployment latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Deployment longitude")
	cmd.Flags().StringVar(&req.LocationName, "location", "", "Location name")
	cmd.Flags().StringVar(&req.LocationType, "location-type", "", "Location type, e.g. parking-lot, lobby")
	cmd.Flags().StringVar(&req.Address, "address", "", "Street address")
	cmd.Flags().StringVar(&req.City, "city", "", "City")
	cmd.Flags().StringVar(&req.Country, "country", "", "Country")
	cmd.Flags().StringVar(&req.DeployedBy, "by", "", "Who placed the drive")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Free-form notes")
	return cmd
}

func newDrivesRecoverCommand(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <code>",
		Short: "Mark a drive as physically recovered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			drive, err := client.GetDriveByCode(ctx, args[0])
			if err != nil {
				return err
			}
			if err := client.RecoverDrive(ctx, drive.ID.String()); err != nil {
				return err
			}
			fmt.Printf("recovered drive %s\n", drive.UniqueCode)
			return nil
		},
	}
	return cmd
}

func newProfilesCommand(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List available drive profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			profiles, err := client.ListProfiles(commandContext(cmd))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSCENARIO\tSYSTEM")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p.ID, p.Name, p.ScenarioType, p.IsSystem)
			}
			return w.Flush()
		},
	}
	return cmd
}
