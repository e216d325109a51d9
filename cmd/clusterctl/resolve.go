package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"clusterfs/pkg/interpolate"
)

var (
	resolveFile      string
	resolveBucket    string
	resolveRequestID string
	resolveAttrs     map[string]string
)

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "original file name")
	resolveCmd.Flags().StringVarP(&resolveBucket, "bucket", "b", "", "bucket, usually the record kind")
	resolveCmd.Flags().StringVar(&resolveRequestID, "request-id", "", "request id mixed into :hash, random when empty")
	resolveCmd.Flags().StringToStringVarP(&resolveAttrs, "attr", "a", nil, "record attribute as key=value, repeatable")
}

var resolveCmd = &cobra.Command{
	Use:   "resolve TEMPLATE",
	Short: "Resolve a path template against a file name and attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		requestID := resolveRequestID
		if requestID == "" {
			requestID = uuid.NewString()
		}

		resolved, err := interpolate.New(cfg.Root).Resolve(args[0], interpolate.Source{
			Filename:   resolveFile,
			Bucket:     resolveBucket,
			RequestID:  requestID,
			Attributes: interpolate.AttributeMap(resolveAttrs),
		})
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), resolved)
		return err
	},
}
