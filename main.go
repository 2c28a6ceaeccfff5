package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"zeth/zeth-prover/config"
	"zeth/zeth-prover/logging"
	merkletree "zeth/zeth-prover/merkle-tree"
	"zeth/zeth-prover/notes"
	"zeth/zeth-prover/prover"
	"zeth/zeth-prover/prover/commitment"
	"zeth/zeth-prover/server"

	gnarkLogger "github.com/consensys/gnark/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	runCli()
}

var shapeFlags = []cli.Flag{
	&cli.UintFlag{Name: "inputs", Usage: "Number of input notes", Value: 2},
	&cli.UintFlag{Name: "outputs", Usage: "Number of output notes", Value: 2},
	&cli.UintFlag{Name: "tree-depth", Usage: "Merkle tree depth", Value: 4},
}

func withShapeFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, shapeFlags...)
}

func shapeFromContext(context *cli.Context) (prover.CircuitShape, error) {
	return prover.NewCircuitShape(
		uint64(context.Uint("inputs")),
		uint64(context.Uint("outputs")),
		uint64(context.Uint("tree-depth")),
	)
}

func runCli() {
	gnarkLogger.Set(*logging.Logger())
	app := cli.App{
		Name:                 "zeth-prover",
		Usage:                "JoinSplit prover for shielded MiMC notes",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name: "setup",
				Flags: withShapeFlags(
					&cli.StringFlag{Name: "circuit", Usage: "Type of circuit (\"joinsplit\")", Value: string(prover.JoinSplitCircuitType)},
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
					&cli.StringFlag{Name: "output-vkey", Usage: "Verifying key output file", Required: false},
				),
				Action: func(context *cli.Context) error {
					shape, err := shapeFromContext(context)
					if err != nil {
						return err
					}
					logging.Logger().Info().Str("shape", shape.String()).Msg("Running setup")

					system, err := prover.SetupCircuit(prover.CircuitType(context.String("circuit")), shape)
					if err != nil {
						return err
					}
					if err := writeToFile(context.String("output"), system); err != nil {
						return err
					}
					if pathVkey := context.String("output-vkey"); pathVkey != "" {
						return writeToFile(pathVkey, system.VerifyingKey)
					}
					return nil
				},
			},
			{
				Name: "r1cs",
				Flags: withShapeFlags(
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
				),
				Action: func(context *cli.Context) error {
					shape, err := shapeFromContext(context)
					if err != nil {
						return err
					}
					logging.Logger().Info().Str("shape", shape.String()).Msg("Building R1CS")

					cs, err := prover.R1CSJoinSplit(shape)
					if err != nil {
						return err
					}
					logging.Logger().Info().
						Int("constraints", cs.GetNbConstraints()).
						Int("publicVariables", cs.GetNbPublicVariables()).
						Msg("R1CS built")
					return writeToFile(context.String("output"), cs)
				},
			},
			{
				Name: "import-setup",
				Flags: withShapeFlags(
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
					&cli.StringFlag{Name: "pk", Usage: "Proving key", Required: true},
					&cli.StringFlag{Name: "vk", Usage: "Verifying key", Required: true},
				),
				Action: func(context *cli.Context) error {
					shape, err := shapeFromContext(context)
					if err != nil {
						return err
					}
					logging.Logger().Info().Str("shape", shape.String()).Msg("Importing setup")

					system, err := prover.ImportJoinSplitSetup(shape, context.String("pk"), context.String("vk"))
					if err != nil {
						return err
					}
					return writeToFile(context.String("output"), system)
				},
			},
			{
				Name: "export-vk",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keys-file", Aliases: []string{"k"}, Usage: "proving system file", Required: true},
					&cli.StringFlag{Name: "output", Usage: "output file", Required: true},
				},
				Action: func(context *cli.Context) error {
					ps, err := prover.ReadSystemFromFile(context.String("keys-file"))
					if err != nil {
						return err
					}
					return writeToFile(context.String("output"), ps.VerifyingKey)
				},
			},
			{
				Name: "gen-test-params",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tree-depth", Usage: "depth of the mock tree", Value: 4},
					&cli.Int64SliceFlag{Name: "in", Usage: "input note values, 0 for a dummy input", Value: cli.NewInt64Slice(10, 0)},
					&cli.Int64SliceFlag{Name: "out", Usage: "output note values", Value: cli.NewInt64Slice(6, 4)},
					&cli.Uint64Flag{Name: "vin", Usage: "public value entering the pool"},
					&cli.Uint64Flag{Name: "vout", Usage: "public value leaving the pool"},
					&cli.BoolFlag{Name: "random", Usage: "place notes at random leaves"},
				},
				Action: func(context *cli.Context) error {
					inValues, err := toValues(context.Int64Slice("in"))
					if err != nil {
						return err
					}
					outValues, err := toValues(context.Int64Slice("out"))
					if err != nil {
						return err
					}
					logging.Logger().Info().Msg("Generating test params for the joinsplit circuit")

					params, _, err := merkletree.BuildTestJoinSplit(
						context.Int("tree-depth"),
						inValues,
						outValues,
						context.Uint64("vin"),
						context.Uint64("vout"),
						context.Bool("random"),
					)
					if err != nil {
						return err
					}
					return printJSON(params)
				},
			},
			{
				Name: "start",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Usage: "TOML config file", Required: false},
					&cli.BoolFlag{Name: "json-logging", Usage: "enable JSON logging", Required: false},
					&cli.StringFlag{Name: "log-level", Usage: "zerolog level", Value: "info", Required: false},
					&cli.StringFlag{Name: "prover-address", Usage: "address for the prover server", Required: false},
					&cli.StringFlag{Name: "metrics-address", Usage: "address for the metrics server", Required: false},
					&cli.StringFlag{Name: "redis-url", Usage: "Redis URL enabling the asynchronous queue", EnvVars: []string{"REDIS_URL"}, Required: false},
					&cli.StringFlag{Name: "api-key", Usage: "API key required on /prove and /verify", EnvVars: []string{"PROVER_API_KEY"}, Required: false},
					&cli.DurationFlag{Name: "proof-timeout", Usage: "timeout for synchronous proofs", Required: false},
					&cli.StringFlag{Name: "circuit-dir", Usage: "Directory where circuit key files are stored", Value: "./circuits/", Required: false},
					&cli.StringSliceFlag{Name: "keys-file", Aliases: []string{"k"}, Value: cli.NewStringSlice(), Usage: "Proving system file"},
				},
				Action: func(context *cli.Context) error {
					if context.Bool("json-logging") {
						logging.SetJSONOutput()
					}
					if err := logging.SetLevel(context.String("log-level")); err != nil {
						return err
					}

					cfg := config.Defaults()
					if path := context.String("config"); path != "" {
						var err error
						if cfg, err = config.ReadConfig(path); err != nil {
							return err
						}
					}
					overrideString(context, "prover-address", &cfg.Server.ProverAddress)
					overrideString(context, "metrics-address", &cfg.Server.MetricsAddress)
					overrideString(context, "redis-url", &cfg.Server.RedisURL)
					overrideString(context, "api-key", &cfg.Server.APIKey)

					ps, err := LoadKeys(context, &cfg)
					if err != nil {
						return err
					}
					if len(ps) == 0 {
						return fmt.Errorf("no proving systems loaded")
					}

					var redisQueue *server.RedisQueue
					if cfg.Server.RedisURL != "" {
						redisQueue, err = server.NewRedisQueue(cfg.Server.RedisURL)
						if err != nil {
							return err
						}
						defer func() {
							if err := redisQueue.Close(); err != nil {
								logging.Logger().Error().Err(err).Msg("error closing redis client")
							}
						}()
					}

					serverConfig := server.Config{
						ProverAddress:  cfg.Server.ProverAddress,
						MetricsAddress: cfg.Server.MetricsAddress,
						APIKey:         cfg.Server.APIKey,
						ProofTimeout:   context.Duration("proof-timeout"),
					}
					instance := server.Run(&serverConfig, redisQueue, ps)
					sigint := make(chan os.Signal, 1)
					signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
					<-sigint
					logging.Logger().Info().Msg("Received signal, shutting down")
					instance.RequestStop()
					logging.Logger().Info().Msg("Waiting for server to close")
					instance.AwaitStop()
					return nil
				},
			},
			{
				Name: "prove",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "keys-file", Aliases: []string{"k"}, Value: cli.NewStringSlice(), Usage: "Proving system file", Required: true},
				},
				Action: func(context *cli.Context) error {
					ps, err := readSystems(context.StringSlice("keys-file"))
					if err != nil {
						return err
					}

					logging.Logger().Info().Msg("Reading params from stdin")
					inputsBytes, err := io.ReadAll(os.Stdin)
					if err != nil {
						return err
					}
					params, err := prover.ParseInput(string(inputsBytes))
					if err != nil {
						return err
					}

					for _, provingSystem := range ps {
						if params.ValidateShape(provingSystem.CircuitShape) != nil {
							continue
						}
						proof, err := provingSystem.ProveJoinSplit(&params)
						if err != nil {
							return err
						}
						public := params.PublicInputs()
						return printJSON(&server.ProofResult{
							Proof:        proof,
							PublicInputs: &public,
							TreeDepth:    provingSystem.TreeDepth,
						})
					}
					return fmt.Errorf("%w: no proving system matches the parameters", prover.ErrInvalidShape)
				},
			},
			{
				Name: "verify",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keys-file", Aliases: []string{"k"}, Usage: "proving system file", Required: true},
				},
				Action: func(context *cli.Context) error {
					ps, err := prover.ReadSystemFromFile(context.String("keys-file"))
					if err != nil {
						return err
					}
					logging.Logger().Info().Str("shape", ps.CircuitShape.String()).Msg("Read proving system")

					logging.Logger().Info().Msg("Reading proof from stdin")
					proofBytes, err := io.ReadAll(os.Stdin)
					if err != nil {
						logging.Logger().Err(err).Msg("error reading proof from stdin")
						return err
					}
					var result server.ProofResult
					if err := json.Unmarshal(proofBytes, &result); err != nil {
						logging.Logger().Err(err).Msg("error unmarshalling proof from stdin")
						return err
					}
					if result.Proof == nil || result.PublicInputs == nil {
						return fmt.Errorf("proof and public_inputs are required")
					}
					if err := ps.VerifyJoinSplit(result.PublicInputs, result.Proof); err != nil {
						return err
					}
					logging.Logger().Info().Msg("verification complete")
					return nil
				},
			},
			{
				Name: "extract-circuit",
				Flags: withShapeFlags(
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
				),
				Action: func(context *cli.Context) error {
					shape, err := shapeFromContext(context)
					if err != nil {
						return err
					}
					logging.Logger().Info().Msg("Extracting gnark circuit to Lean")
					circuitString, err := prover.ExtractLean(shape)
					if err != nil {
						return err
					}
					if err := os.WriteFile(context.String("output"), []byte(circuitString), 0o644); err != nil {
						return err
					}
					logging.Logger().Info().Int("bytesWritten", len(circuitString)).Msg("Lean circuit written to file")
					return nil
				},
			},
			{
				Name:  "keygen",
				Usage: "Generate a spending key with its paying key and an age identity for note delivery",
				Action: func(context *cli.Context) error {
					spendingKey, err := commitment.NewSpendingKey()
					if err != nil {
						return err
					}
					publicKey := commitment.DerivePublicKey(spendingKey)
					identity, recipient, err := notes.GenerateIdentity()
					if err != nil {
						return err
					}
					return printJSON(map[string]string{
						"a_sk":      fmt.Sprintf("0x%064x", &spendingKey),
						"a_pk":      fmt.Sprintf("0x%064x", &publicKey),
						"identity":  identity,
						"recipient": recipient,
					})
				},
			},
			{
				Name:  "seal-note",
				Usage: "Encrypt a note read from stdin to an age recipient",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipient", Aliases: []string{"r"}, Usage: "age recipient (age1...)", Required: true},
				},
				Action: func(context *cli.Context) error {
					data, err := io.ReadAll(os.Stdin)
					if err != nil {
						return err
					}
					var note commitment.Note
					if err := json.Unmarshal(data, &note); err != nil {
						return err
					}
					envelope, err := notes.Seal(&note, context.String("recipient"))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(envelope)
					return err
				},
			},
			{
				Name:  "open-note",
				Usage: "Decrypt a sealed note read from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Usage: "age identity (AGE-SECRET-KEY-1...)", EnvVars: []string{"NOTE_IDENTITY"}, Required: true},
					&cli.StringFlag{Name: "commitment", Usage: "expected note commitment (hex)", Required: false},
				},
				Action: func(context *cli.Context) error {
					envelope, err := io.ReadAll(os.Stdin)
					if err != nil {
						return err
					}
					identity := context.String("identity")

					var note *commitment.Note
					if cmHex := context.String("commitment"); cmHex != "" {
						cm, ok := new(big.Int).SetString(trimHexPrefix(cmHex), 16)
						if !ok {
							return fmt.Errorf("invalid commitment: %s", cmHex)
						}
						note, err = notes.OpenAndCheck(envelope, identity, cm)
					} else {
						note, err = notes.Open(envelope, identity)
					}
					if err != nil {
						return err
					}
					return printJSON(note)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Logger().Fatal().Err(err).Msg("App failed.")
	}
}

// LoadKeys reads proving systems from --keys-file, then the config's keys, then the
// default file for the configured shape under --circuit-dir.
func LoadKeys(context *cli.Context, cfg *config.Config) ([]*prover.ProvingSystem, error) {
	keys := context.StringSlice("keys-file")
	if len(keys) == 0 {
		keys = cfg.Keys
	}
	if len(keys) == 0 {
		shape := prover.CircuitShape{
			NumberOfInputs:  cfg.Circuit.Inputs,
			NumberOfOutputs: cfg.Circuit.Outputs,
			TreeDepth:       cfg.Circuit.TreeDepth,
		}
		keys = prover.GetKeys(context.String("circuit-dir"), []prover.CircuitShape{shape})
	}
	return readSystems(keys)
}

func readSystems(keys []string) ([]*prover.ProvingSystem, error) {
	pss := make([]*prover.ProvingSystem, len(keys))
	for i, key := range keys {
		logging.Logger().Info().Msg("Reading proving system from file " + key + "...")
		ps, err := prover.ReadSystemFromFile(key)
		if err != nil {
			return nil, err
		}
		pss[i] = ps
		logging.Logger().Info().
			Uint32("inputs", ps.NumberOfInputs).
			Uint32("outputs", ps.NumberOfOutputs).
			Uint32("treeDepth", ps.TreeDepth).
			Msg("Read proving system")
	}
	return pss, nil
}

func overrideString(context *cli.Context, flag string, target *string) {
	if context.IsSet(flag) {
		*target = context.String(flag)
	}
}

func toValues(raw []int64) ([]uint64, error) {
	values := make([]uint64, len(raw))
	for i, v := range raw {
		if v < 0 {
			return nil, fmt.Errorf("note value must not be negative: %d", v)
		}
		values[i] = uint64(v)
	}
	return values, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func printJSON(v interface{}) error {
	r, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(r))
	return nil
}

func writeToFile(path string, data io.WriterTo) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			logging.Logger().Error().Err(err).Msg("error closing file")
		}
	}(file)

	written, err := data.WriteTo(file)
	if err != nil {
		return err
	}
	logging.Logger().Info().Int64("bytesWritten", written).Str("path", path).Msg("written to file")
	return nil
}
