package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/config"
	"github.com/privgraph/modelhub/internal/noise"
	"github.com/privgraph/modelhub/internal/payload"
	"github.com/privgraph/modelhub/internal/pipeline"
)

func init() {
	cmd := &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Add Laplace noise to a dataset and encrypt it",
		Long: "Calibrate Laplace noise over every byte of the dataset, encrypt the noised values under a fresh " +
			"Paillier key and write the payload. The public key and, for legacy payloads, the digit lengths are " +
			"printed as JSON. The private key is discarded.",
		Args: cobra.ExactArgs(1),
		Run:  runEncrypt,
	}

	cmd.Flags().StringP("out", "o", "", "Payload output file (required)")
	addPipelineFlags(cmd)
	cmd.MarkFlagRequired("out")

	RootCmd.AddCommand(cmd)
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("epsilon", 0, "Privacy budget (default: config privacy.epsilon)")
	cmd.Flags().Float64("sensitivity", 0, "Sensitivity (default: config privacy.sensitivity)")
	cmd.Flags().Int("key-bits", 0, "Paillier modulus size (default: config encryption.key_bits)")
	cmd.Flags().Int("workers", 0, "Parallel encryption workers (default: config encryption.workers)")
	cmd.Flags().String("format", "", "Payload format: framed or legacy (default: config encryption.payload_format)")
}

func pipelineOptions(cmd *cobra.Command, c *config.Config) pipeline.Options {
	opts := pipeline.Options{
		Epsilon:     c.Privacy.Epsilon,
		Sensitivity: c.Privacy.Sensitivity,
		Encryption: payload.Options{
			KeyBits: c.Encryption.KeyBits,
			Workers: c.Encryption.Workers,
		},
	}
	if cmd.Flags().Changed("epsilon") {
		opts.Epsilon, _ = cmd.Flags().GetFloat64("epsilon")
		if !(opts.Epsilon > 0) {
			exitErr("epsilon", fmt.Errorf("%w: epsilon must be positive", noise.ErrInvalidParameter))
		}
	}
	if cmd.Flags().Changed("sensitivity") {
		opts.Sensitivity, _ = cmd.Flags().GetFloat64("sensitivity")
		if !(opts.Sensitivity > 0) {
			exitErr("sensitivity", fmt.Errorf("%w: sensitivity must be positive", noise.ErrInvalidParameter))
		}
	}
	if bits, _ := cmd.Flags().GetInt("key-bits"); bits > 0 {
		opts.Encryption.KeyBits = bits
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		opts.Encryption.Workers = workers
	}

	name, _ := cmd.Flags().GetString("format")
	if name == "" {
		name = c.Encryption.PayloadFormat
	}
	format, err := payload.ParseFormat(name)
	if err != nil {
		exitErr("format", err)
	}
	opts.Encryption.Format = format
	return opts
}

func runEncrypt(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")

	raw, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read dataset", err)
	}

	c := loadConfig()
	log := newLogger(cmd, c)
	defer log.Sync()

	start := time.Now()
	prep, err := pipeline.New(nil, log, pipelineOptions(cmd, c)).Prepare(cmd.Context(), raw)
	if err != nil {
		exitErr("encrypt", err)
	}
	if err := os.WriteFile(out, prep.Payload.Data, 0o644); err != nil {
		exitErr("write payload", err)
	}

	printJSON(map[string]interface{}{
		"file":          out,
		"format":        prep.Payload.Format,
		"ciphertexts":   prep.Payload.Count(),
		"input_size":    humanize.Bytes(uint64(len(raw))),
		"payload_size":  humanize.Bytes(uint64(len(prep.Payload.Data))),
		"elapsed":       time.Since(start).String(),
		"public_key":    prep.PublicKey,
		"digit_lengths": digitLengths(prep.Payload),
	})
}

// digitLengths returns the lengths a legacy payload needs to be split, nil otherwise.
func digitLengths(p *payload.Payload) []int {
	if p.Format != payload.FormatLegacy {
		return nil
	}
	return p.DigitLengths
}
