package main

import (
	"github.com/spf13/cobra"

	"clusterfs/pkg/client"
)

var (
	uploadContentType string
	uploadAttrs       map[string]string
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVarP(&uploadContentType, "content-type", "t", "", "content type of the file")
	uploadCmd.Flags().StringToStringVarP(&uploadAttrs, "attr", "a", nil, "document attribute as key=value, repeatable")
}

var uploadCmd = &cobra.Command{
	Use:   "upload KIND FILE",
	Short: "Upload a file to clusterd as a new document of KIND",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		document, err := client.New(serverURL).Upload(cmd.Context(), args[0], args[1], uploadContentType, uploadAttrs)
		if err != nil {
			return err
		}
		return printJSON(cmd, document)
	},
}
