package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trufnetwork/creddigest/extensions/tn_creddigest"
)

// attesterKeyEnv names the variable read when sign gets no --key.
const attesterKeyEnv = tn_creddigest.EnvPrefix + "ATTESTER_KEY"

func newSignCmd() *cobra.Command {
	var (
		in     tn_creddigest.SubmissionInput
		keyHex string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign credential fields as an attester",
		Long: `Sign the canonical message of the given fields and print the submission
as JSON, ready for "verify --input". The private key comes from --key or
` + attesterKeyEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyHex == "" {
				keyHex = os.Getenv(attesterKeyEnv)
			}
			signer, err := tn_creddigest.NewAttesterSignerFromHex(keyHex)
			if err != nil {
				return err
			}

			// Placeholders satisfy Parse; SignSubmission overwrites both.
			in.Signature = "0x"
			in.ClaimedAttester = signer.Address().Hex()
			sub, err := in.Parse()
			if err != nil {
				return err
			}
			if err := sub.Validate(); err != nil && !errors.Is(err, tn_creddigest.ErrInvalidSignatureLength) {
				return err
			}

			signed, err := signer.SignSubmission(sub)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tn_creddigest.NewSubmissionInput(signed))
		},
	}

	submissionFlags(cmd, &in)
	cmd.Flags().StringVar(&keyHex, "key", "", "attester private key (hex)")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new attester key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := tn_creddigest.GenerateAttesterSigner()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"address":     signer.Address().Hex(),
				"private_key": signer.PrivateKeyHex(),
			})
		},
	}
}

type inspectOutput struct {
	ContextID     string `json:"context_id"`
	Timestamp     uint64 `json:"timestamp"`
	StatusFlag    string `json:"status_flag"`
	ContentDigest string `json:"content_digest"`
	Version       string `json:"version"`
	Supported     bool   `json:"version_supported"`
	RegistryKey   string `json:"registry_key"`
	Digest        string `json:"digest"`
	EIP191Digest  string `json:"eip191_digest"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <canonical-message-hex>",
		Short: "Decode a 73-byte canonical message and print its registry key and digests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.TrimSpace(args[0])
			if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
				input = "0x" + input
			}
			raw, err := hexutil.Decode(input)
			if err != nil {
				return errors.Wrapf(tn_creddigest.ErrInvalidInput, "decode message: %v", err)
			}
			fields, err := tn_creddigest.ParseCanonicalMessage(raw)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), inspectOutput{
				ContextID:     fields.ContextID.Hex(),
				Timestamp:     fields.Timestamp,
				StatusFlag:    hexutil.Encode([]byte{fields.StatusFlag}),
				ContentDigest: fields.ContentDigest.Hex(),
				Version:       fmt.Sprintf("0x%04x", fields.Version),
				Supported:     tn_creddigest.IsSupportedVersion(fields.Version),
				RegistryKey:   fields.Key().Hex(),
				Digest:        tn_creddigest.SigningDigest(raw, false).Hex(),
				EIP191Digest:  tn_creddigest.SigningDigest(raw, true).Hex(),
			})
		},
	}
}
