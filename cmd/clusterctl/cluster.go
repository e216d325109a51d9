package main

import (
	"github.com/spf13/cobra"

	"clusterfs/pkg/client"
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/models"
)

var clusterRemote bool

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.AddCommand(clusterGetCmd)
	clusterGetCmd.Flags().BoolVarP(&clusterRemote, "remote", "r", false, "read through clusterd instead of the local store")
	clusterCmd.AddCommand(clusterSetCmd)
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Inspect and seed bucket counters",
}

var clusterGetCmd = &cobra.Command{
	Use:   "get BUCKET",
	Short: "Show the counter of a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if clusterRemote {
			state, err := client.New(serverURL).Cluster(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		}

		_, backends, err := openBackends(cmd.Context())
		if err != nil {
			return err
		}
		defer closeBackends(backends)

		state, err := cluster.NewAllocator(backends.States).Peek(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, models.ClusterState{
			Bucket:    state.Name,
			Digits:    state.Digits.String(),
			UpdatedAt: state.UpdatedAt,
		})
	},
}

var clusterSetCmd = &cobra.Command{
	Use:   "set BUCKET DIGITS",
	Short: "Overwrite the counter of a bucket, e.g. 1/3/17",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		digits, err := cluster.ParseDigits(args[1])
		if err != nil {
			return err
		}

		_, backends, err := openBackends(cmd.Context())
		if err != nil {
			return err
		}
		defer closeBackends(backends)

		allocator := cluster.NewAllocator(backends.States)
		if err := allocator.Seed(cmd.Context(), args[0], digits); err != nil {
			return err
		}

		state, err := allocator.Peek(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, models.ClusterState{
			Bucket:    state.Name,
			Digits:    state.Digits.String(),
			UpdatedAt: state.UpdatedAt,
		})
	},
}
