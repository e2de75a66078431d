package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trufnetwork/creddigest/extensions/tn_creddigest"
)

// submissionFlags binds the wire form of a submission to command flags.
func submissionFlags(cmd *cobra.Command, in *tn_creddigest.SubmissionInput) {
	f := cmd.Flags()
	f.StringVar(&in.ContextID, "context-id", "", "32-byte context id (0x hex)")
	f.StringVar(&in.Timestamp, "timestamp", "", "6-byte timestamp (0x hex)")
	f.StringVar(&in.StatusFlag, "status", "0x00", "1-byte status flag (0x hex)")
	f.StringVar(&in.ContentDigest, "digest", "", "32-byte content digest (0x hex)")
	f.StringVar(&in.Version, "vc-version", "0x0000", "2-byte credential version (0x hex)")
	f.BoolVar(&in.UseEIP191, "eip191", false, "signature covers the EIP-191 prefixed digest")
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		in        tn_creddigest.SubmissionInput
		inputPath string
		caller    string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Submit a signed credential digest for verification",
		Long: `Submit a signed credential digest. The submission is read from --input
(a JSON document as printed by "sign", "-" for stdin) or from flags.
A signature that does not match the claimed attester still consumes the key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath != "" {
				if err := readSubmissionInput(cmd, inputPath, &in); err != nil {
					return err
				}
			}

			sub, err := in.Parse()
			if err != nil {
				return err
			}
			holder, err := tn_creddigest.ParseAddress(caller)
			if err != nil {
				return errors.Wrap(err, "caller")
			}

			registry, closeStore, err := opts.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := registry.VerifyVC(cmd.Context(), sub, holder)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), n)
		},
	}

	submissionFlags(cmd, &in)
	cmd.Flags().StringVar(&in.Signature, "signature", "", "65-byte signature R||S||V (0x hex)")
	cmd.Flags().StringVar(&in.ClaimedAttester, "attester", "", "claimed attester address")
	cmd.Flags().StringVar(&inputPath, "input", "", "read the submission from a JSON file, - for stdin")
	cmd.Flags().StringVar(&caller, "caller", "", "submitting address, recorded as holder")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func readSubmissionInput(cmd *cobra.Command, path string, in *tn_creddigest.SubmissionInput) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "open submission")
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(in); err != nil {
		return errors.Wrapf(tn_creddigest.ErrInvalidInput, "decode submission %s: %v", path, err)
	}
	return nil
}

func newAddressCmd(opts *rootOptions, which string) *cobra.Command {
	return &cobra.Command{
		Use:   which + " <registry-key>",
		Short: fmt.Sprintf("Print the %s recorded for a registry key", which),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := tn_creddigest.ParseRegistryKey(args[0])
			if err != nil {
				return err
			}

			registry, closeStore, err := opts.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			lookup := registry.AttesterOf
			if which == "holder" {
				lookup = registry.HolderOf
			}
			addr, err := lookup(cmd.Context(), key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())
			return err
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <registry-key>",
		Short: "Print the state and record of a registry key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := tn_creddigest.ParseRegistryKey(args[0])
			if err != nil {
				return err
			}

			registry, closeStore, err := opts.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			entry, err := registry.Lookup(cmd.Context(), key)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), toRecordRow(entry))
		},
	}
}
