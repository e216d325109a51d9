package main

import (
	"strings"

	"github.com/spf13/cobra"

	"clusterfs/pkg/client"
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/models"
)

var (
	allocDepth    int
	allocMaxItems int
	allocHex      bool
	allocRemote   bool
)

func init() {
	rootCmd.AddCommand(allocateCmd)
	allocateCmd.Flags().IntVar(&allocDepth, "depth", 0, "cluster depth, defaults to the bucket settings")
	allocateCmd.Flags().IntVar(&allocMaxItems, "max-items", 0, "items per directory, defaults to the bucket settings")
	allocateCmd.Flags().BoolVar(&allocHex, "hex", false, "render directory names in hexadecimal")
	allocateCmd.Flags().BoolVarP(&allocRemote, "remote", "r", false, "allocate through clusterd instead of the local store")
}

var allocateCmd = &cobra.Command{
	Use:   "allocate BUCKET",
	Short: "Allocate the next directory slot of a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if allocRemote {
			return allocateRemote(cmd, args[0])
		}
		return allocateLocal(cmd, args[0])
	},
}

func allocateRemote(cmd *cobra.Command, bucket string) error {
	opts := client.AllocateOptions{Depth: allocDepth, MaxItems: allocMaxItems}
	if cmd.Flags().Changed("hex") {
		opts.Hex = &allocHex
	}

	allocation, err := client.New(serverURL).Allocate(cmd.Context(), bucket, opts)
	if err != nil {
		return err
	}
	return printJSON(cmd, allocation)
}

func allocateLocal(cmd *cobra.Command, bucket string) error {
	cfg, backends, err := openBackends(cmd.Context())
	if err != nil {
		return err
	}
	defer closeBackends(backends)

	settings := cfg.Storage.For(bucket)
	req := cluster.Request{
		Bucket:   bucket,
		Depth:    settings.Depth,
		MaxItems: settings.MaxItems,
		Hex:      settings.Hex,
	}
	if allocDepth > 0 {
		req.Depth = allocDepth
	}
	if allocMaxItems > 0 {
		req.MaxItems = allocMaxItems
	}
	if cmd.Flags().Changed("hex") {
		req.Hex = allocHex
	}

	result, err := cluster.NewAllocator(backends.States).Allocate(cmd.Context(), req)
	if err != nil {
		return err
	}

	return printJSON(cmd, models.AllocationResponse{
		Bucket:  result.Bucket,
		Path:    strings.Join(result.Path, "/"),
		Digits:  result.Digits.String(),
		Next:    result.Next.String(),
		Wrapped: result.Wrapped,
	})
}
