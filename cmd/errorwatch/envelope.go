package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kiranshivaraju/errorwatch/internal/ingest"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"github.com/spf13/cobra"
)

func newEnvelopeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envelope",
		Short: "Encode or decode log batch envelopes",
	}

	var cloudWatch bool
	encode := &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode a JSON array of error payloads into an envelope",
		Long: `Reads a JSON array of error payloads from file (or stdin) and prints the
base64, gzip-compressed log batch. With --cloudwatch the envelope is wrapped
in a CloudWatch Logs subscription event, ready to POST to /api/v1/ingest.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var payloads []models.RawErrorPayload
			if err := json.Unmarshal(raw, &payloads); err != nil {
				return fmt.Errorf("parse payloads: %w", err)
			}

			env, err := ingest.EncodePayloads(payloads)
			if err != nil {
				return err
			}
			if !cloudWatch {
				fmt.Fprintln(cmd.OutOrStdout(), env)
				return nil
			}
			return writeJSON(cmd, map[string]any{"awslogs": map[string]string{"data": env}})
		},
	}
	encode.Flags().BoolVar(&cloudWatch, "cloudwatch", false, "Wrap the envelope in a CloudWatch Logs event")

	decode := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode an envelope or CloudWatch event into its payloads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			env := strings.TrimSpace(string(raw))
			if strings.HasPrefix(env, "{") || strings.HasPrefix(env, `"`) {
				if env, err = ingest.ParseCloudWatchEvent(raw); err != nil {
					return err
				}
			}

			batch, err := ingest.Decode(env)
			if err != nil {
				return err
			}
			for _, w := range batch.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped event %d (%s): %s\n", w.Index, w.EventID, w.Reason)
			}
			return writeJSON(cmd, batch.Payloads)
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return b, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
