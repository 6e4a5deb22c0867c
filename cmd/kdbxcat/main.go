package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spectralops/kdbxpipe/pkg/header"
	"github.com/spectralops/kdbxpipe/pkg/kdbx"
	"github.com/spectralops/kdbxpipe/pkg/logging"
	"github.com/spectralops/kdbxpipe/pkg/pipeline"
	"github.com/spf13/viper"
)

// CLI is kdbxcat's command surface: a thin driver over pkg/kdbx for
// decrypting a KDBX v3 file to its inner XML document, or encrypting an
// XML document into a new one. It exists to exercise pkg/kdbx end to end
// with real files, not as a general-purpose password manager front end.
var CLI struct {
	Config   string `optional name:"config" help:"Path to a kdbxcat YAML config file"`
	LogLevel string `optional short:"l" help:"Application log level"`

	Cat struct {
		Path     string `arg name:"path" help:"Path to the .kdbx file to read"`
		Password string `optional name:"password" help:"Database password (falls back to KDBXCAT_PASSWORD)"`
		KeyFile  string `optional name:"keyfile" help:"Path to a key file"`
		Out      string `optional name:"out" help:"Write the decrypted XML here instead of stdout"`
	} `cmd help:"Decrypt a KDBX v3 file and print its inner XML document"`

	Seal struct {
		XMLPath  string `arg name:"xml_path" help:"Path to the plaintext XML document to encrypt"`
		Out      string `arg name:"out" help:"Path to write the new .kdbx file"`
		Password string `optional name:"password" help:"Database password (falls back to KDBXCAT_PASSWORD)"`
		KeyFile  string `optional name:"keyfile" help:"Path to a key file"`
		Profile  string `optional name:"profile" help:"Name of a cipher profile from the config file"`
	} `cmd help:"Encrypt a plaintext XML document into a new KDBX v3 file"`

	Version struct{} `cmd help:"Print kdbxcat's version"`
}

var version = "dev"

// cipherProfile names the header template settings a Seal invocation
// should use; profiles live under the config file's "profiles" map so a
// caller can keep, say, a "fast-test" profile with few transform rounds
// separate from a "secure" one, without repeating flags every time.
type cipherProfile struct {
	TransformRounds     uint64 `mapstructure:"transform_rounds"`
	Compress            bool   `mapstructure:"compress"`
	InnerRandomStreamID uint32 `mapstructure:"inner_random_stream_id"`
}

func main() {
	// Mirrors teller's whole premise of pulling secrets out of the
	// environment: a .env file in the working directory can supply
	// KDBXCAT_PASSWORD without it ever touching shell history.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI)

	logger := logging.GetRoot()
	logLevel := CLI.LogLevel
	if logLevel == "" {
		logLevel = "error"
	}
	logger.SetLevel(logLevel)

	viper.SetDefault("buffer_size", pipeline.DefaultBufferSize)
	viper.BindEnv("buffer_size", "KDBXCAT_BUFFER_SIZE")
	if CLI.Config != "" {
		viper.SetConfigFile(CLI.Config)
		if err := viper.ReadInConfig(); err != nil {
			logger.Fatal("could not read config file %s: %v", CLI.Config, err)
		}
	}
	cfg := pipeline.Config{BufferSize: viper.GetInt("buffer_size")}

	var err error
	switch ctx.Command() {
	case "version":
		fmt.Printf("kdbxcat %s\n", version)
		return
	case "cat <path>":
		err = runCat(cfg, logger)
	case "seal <xml_path> <out>":
		err = runSeal(cfg, logger)
	default:
		logger.Fatal("unsupported command %s", ctx.Command())
	}
	if err != nil {
		logger.Fatal("%v", err)
		os.Exit(1)
	}
}

func resolvePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("KDBXCAT_PASSWORD")
}

func readKeyFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func runCat(cfg pipeline.Config, logger logging.Logger) error {
	keyFileData, err := readKeyFile(CLI.Cat.KeyFile)
	if err != nil {
		return err
	}
	creds := kdbx.Credentials{
		Password:    resolvePassword(CLI.Cat.Password),
		KeyFileData: keyFileData,
	}

	result, err := kdbx.Load(context.Background(), kdbx.LocalFileSource{Path: CLI.Cat.Path}, creds, cfg, logger)
	if err != nil {
		return err
	}

	out := os.Stdout
	if CLI.Cat.Out != "" {
		f, ferr := os.Create(CLI.Cat.Out)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		out = f
	}
	return pipeline.WriterSink(out, result.XML)
}

func runSeal(cfg pipeline.Config, logger logging.Logger) error {
	keyFileData, err := readKeyFile(CLI.Seal.KeyFile)
	if err != nil {
		return err
	}
	creds := kdbx.Credentials{
		Password:    resolvePassword(CLI.Seal.Password),
		KeyFileData: keyFileData,
	}

	profile, err := loadProfile(CLI.Seal.Profile)
	if err != nil {
		return err
	}

	// TransformSeed, EncryptionIV, ProtectedStreamKey, MasterSeed, and
	// StreamStartBytes are all left unset here; kdbx.Store generates
	// fresh values for every one of them per §4.7.
	tmpl := header.New()
	tmpl.TransformRounds = profile.TransformRounds
	tmpl.InnerRandomStreamID = header.InnerStreamID(profile.InnerRandomStreamID)
	if profile.Compress {
		tmpl.CompressionFlags = header.CompressionGzip
	}

	xmlFile, err := os.Open(CLI.Seal.XMLPath)
	if err != nil {
		return err
	}
	defer xmlFile.Close()

	return kdbx.Store(context.Background(), kdbx.LocalFileSink{Path: CLI.Seal.Out}, creds, tmpl, xmlFile, cfg, logger)
}

// loadProfile decodes the named profile from viper's "profiles" map,
// falling back to sane defaults (6000 AES-KDF rounds, Salsa20 inner
// stream, no compression) when no profile name was given. A named profile
// that the config's "profiles" map lacks (including when no config file
// was given) is an error.
// The two-step decode (arbitrary map, then mapstructure.Decode into a
// concrete struct) mirrors fdo-server's ServiceInfoOperation.UnmarshalParams.
func loadProfile(name string) (cipherProfile, error) {
	profile := cipherProfile{TransformRounds: 6000, InnerRandomStreamID: uint32(header.InnerStreamSalsa)}
	if name == "" {
		return profile, nil
	}
	raw := viper.GetStringMap("profiles." + name)
	if len(raw) == 0 {
		return profile, fmt.Errorf("unknown cipher profile %q", name)
	}
	if err := mapstructure.Decode(raw, &profile); err != nil {
		return profile, fmt.Errorf("decoding cipher profile %q: %w", name, err)
	}
	return profile, nil
}
