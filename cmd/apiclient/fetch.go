package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-client/request"
	"github.com/spf13/cobra"
)

var (
	fetchMethod   string
	fetchData     string
	fetchSkipAuth bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <service> <path>",
	Short: "Send a request to a configured service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context(), currentSettings())
		if err != nil {
			return err
		}

		opts := request.Options{
			Method:   strings.ToUpper(fetchMethod),
			SkipAuth: fetchSkipAuth,
		}
		if fetchData != "" {
			opts.Body = json.RawMessage(fetchData)
		}

		body, err := c.For(nil).Fetch(cmd.Context(), args[0], args[1], opts)
		if err != nil {
			return err
		}
		return printBody(cmd.OutOrStdout(), body)
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "X", http.MethodGet, "HTTP method")
	fetchCmd.Flags().StringVarP(&fetchData, "data", "d", "", "JSON request body")
	fetchCmd.Flags().BoolVar(&fetchSkipAuth, "no-auth", false, "Send without the access token")
	rootCmd.AddCommand(fetchCmd)
}

func printBody(w io.Writer, body any) error {
	switch b := body.(type) {
	case nil:
		return nil
	case string:
		fmt.Fprintln(w, b)
		return nil
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
