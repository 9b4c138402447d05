package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/app"
	"github.com/meizi0715/bdt-v1.5/internal/hash/sha256"
	"github.com/meizi0715/bdt-v1.5/internal/snapshot"
)

// newSnapshotsCmd groups snapshot inspection and maintenance.
func newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSnapshots(cmd, func(store *snapshot.Store) error {
				infos, err := store.Describe(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Name", "Size", "Digest"})
				for _, info := range infos {
					t.AppendRow(table.Row{info.Name, info.Size, sha256.Short(info.Digest)})
				}
				t.AppendFooter(table.Row{"", len(infos), ""})
				t.Render()
				return nil
			})
		},
	}
	cmd.AddCommand(newSnapshotsShowCmd(), newSnapshotsPruneCmd())
	return cmd
}

func newSnapshotsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSnapshots(cmd, func(store *snapshot.Store) error {
				data, err := store.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newSnapshotsPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSnapshots(cmd, func(store *snapshot.Store) error {
				if !cmd.Flags().Changed("keep") {
					e, _ := resolveEnv(cmd.Context())
					keep = e.cfg.Snapshot.Keep
				}
				n, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d snapshot(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", snapshot.DefaultKeep, "number of snapshots to keep (default snapshot.keep)")
	return cmd
}

func withSnapshots(cmd *cobra.Command, fn func(*snapshot.Store) error) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	store, closeStore, err := app.OpenSnapshots(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			e.logger.Warn("failed to close snapshot backend", zap.Error(cerr))
		}
	}()
	return fn(store)
}
