package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/TuPhung369/PasswordEpic-sub005/internal/biometric"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/records"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/securestore"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/service"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/session"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/vault"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
)

const cliVersion = "0.1.0"

// dirEnvVar overrides the default vault directory when --dir is not passed.
const dirEnvVar = "EPICVAULT_DIR"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "init":
		handleError(runInit(os.Args[2:]))
	case "verify":
		handleError(runVerify(os.Args[2:]))
	case "change":
		handleError(runChange(os.Args[2:]))
	case "status":
		handleError(runStatus(os.Args[2:]))
	case "session":
		handleError(runSessionKey(os.Args[2:]))
	case "generate":
		handleError(runGenerate(os.Args[2:]))
	case "record":
		if len(os.Args) < 3 {
			printRecordUsage()
			os.Exit(1)
		}
		switch os.Args[2] {
		case "add":
			handleError(runRecordAdd(os.Args[3:]))
		case "get":
			handleError(runRecordGet(os.Args[3:]))
		case "list":
			handleError(runRecordList(os.Args[3:]))
		case "del":
			handleError(runRecordDel(os.Args[3:]))
		default:
			printRecordUsage()
			os.Exit(1)
		}
	case "bio":
		if len(os.Args) < 3 {
			printBioUsage()
			os.Exit(1)
		}
		switch os.Args[2] {
		case "enable":
			handleError(runBioEnable(os.Args[3:]))
		case "disable":
			handleError(runBioDisable(os.Args[3:]))
		case "status":
			handleError(runBioStatus(os.Args[3:]))
		default:
			printBioUsage()
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

// commonFlags are shared by every subcommand that touches the vault.
type commonFlags struct {
	dir     string
	verbose bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.dir, "dir", "", "vault directory (or "+dirEnvVar+")")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *commonFlags) resolveDir() (string, error) {
	dir := c.dir
	if dir == "" {
		dir = os.Getenv(dirEnvVar)
	}
	if dir == "" {
		return "", userError{msg: "missing vault directory: pass --dir or set " + dirEnvVar}
	}
	return dir, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// openService wires the full stack over a vault directory. The returned
// cleanup closes the stores and wipes cached keys.
func openService(common commonFlags) (*service.Service, func(), error) {
	dir, err := common.resolveDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create vault directory: %w", err)
	}
	log := newLogger(common.verbose)

	kv, err := kvstore.OpenBolt(filepath.Join(dir, "state.db"), log)
	if err != nil {
		return nil, nil, err
	}
	recs, err := records.Open(records.Config{FilePath: filepath.Join(dir, "records.db")}, log)
	if err != nil {
		kv.Close()
		return nil, nil, err
	}

	engine := krypto.NewEngine()
	creds := vault.NewStore(kv, securestore.NewPlatformStore(), log)
	sessions := session.NewManager(engine, kv, log)
	gate := biometric.NewGate(biometric.NewPlatformHardware(), kv, log)

	svc := service.New(engine, creds, sessions, gate, recs, log)
	cleanup := func() {
		svc.Close()
		if err := kv.Close(); err != nil {
			log.Warn().Err(err).Msg("close key-value store")
		}
	}
	return svc, cleanup, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	var useBio bool
	fs.BoolVar(&useBio, "bio", false, "gate the stored secret with biometrics")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if configured, err := svc.IsVaultConfigured(ctx); err != nil {
		return err
	} else if configured {
		return userError{msg: "vault is already configured; use 'change' to rotate the master password"}
	}

	pw, err := promptPassword("Enter master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	result, bioEnabled := svc.SetMasterSecret(ctx, string(pw), useBio)
	if !result.Success {
		return userError{msg: result.Message}
	}
	if useBio && !bioEnabled {
		fmt.Println("vault initialized (biometric gating unavailable, stored ungated)")
	} else if bioEnabled {
		fmt.Println("vault initialized with biometric gating")
	} else {
		fmt.Println("vault initialized")
	}
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptPassword("Enter master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	result := svc.VerifyMasterPassword(context.Background(), string(pw))
	if !result.Success {
		return userError{msg: result.Message}
	}
	fmt.Println("master password verified")
	return nil
}

func runChange(args []string) error {
	fs := flag.NewFlagSet("change", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	current, err := promptPassword("Current master password: ")
	if err != nil {
		return fmt.Errorf("read current password: %w", err)
	}
	defer zeroBytes(current)

	next, err := promptPassword("New master password: ")
	if err != nil {
		return fmt.Errorf("read new password: %w", err)
	}
	defer zeroBytes(next)

	confirm, err := promptPassword("Confirm new master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(next, confirm) {
		return userError{msg: "passwords do not match"}
	}

	result := svc.ChangeMasterPassword(context.Background(), string(current), string(next))
	if !result.Success {
		return userError{msg: result.Message}
	}
	fmt.Println("master password changed")
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	configured, err := svc.IsVaultConfigured(ctx)
	if err != nil {
		return err
	}
	gated, err := svc.IsBiometricEnabled(ctx)
	if err != nil {
		return err
	}
	state, err := svc.BiometricState(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("configured:         %v\n", configured)
	fmt.Printf("secret gated:       %v\n", gated)
	fmt.Printf("sensor available:   %v\n", state.Available)
	if !state.Available && state.Reason != "" {
		fmt.Printf("sensor reason:      %s\n", state.Reason)
	}
	fmt.Printf("biometric unlock:   %v\n", state.Enrolled)
	if state.Enrolled && state.Fallback {
		fmt.Println("unlock mode:        virtual key fallback")
	}
	return nil
}

func runSessionKey(args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	var userID, email string
	var fresh bool
	fs.StringVar(&userID, "user", "", "signed-in user id")
	fs.StringVar(&email, "email", "", "signed-in email (optional)")
	fs.BoolVar(&fresh, "fresh", false, "start a new session before deriving")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if userID == "" {
		return userError{msg: "missing required flag: --user"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if fresh {
		if result := svc.StartNewSession(ctx); !result.Success {
			return userError{msg: result.Message}
		}
	}

	result := svc.GetEffectiveSessionKey(ctx, session.Identity{UserID: userID, Email: email})
	if !result.Success {
		return userError{msg: result.Message}
	}
	defer krypto.Zeroize(result.Key)

	// The key itself never leaves the process. The id is enough to tell
	// sessions apart.
	fmt.Printf("session id: %s\n", result.SessionID)
	return nil
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var length int
	var noSymbols, excludeSimilar bool
	fs.IntVar(&length, "length", 20, "password length")
	fs.BoolVar(&noSymbols, "no-symbols", false, "letters and digits only")
	fs.BoolVar(&excludeSimilar, "exclude-similar", false, "drop visually ambiguous characters")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	opts := krypto.DefaultPasswordOptions()
	opts.Symbols = !noSymbols
	opts.ExcludeSimilar = excludeSimilar

	pw, err := krypto.GeneratePassword(length, opts)
	if err != nil {
		return userError{msg: err.Error()}
	}
	fmt.Println(pw)
	return nil
}

func runRecordAdd(args []string) error {
	fs := flag.NewFlagSet("record add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	var userID, site, name string
	fs.StringVar(&userID, "user", "", "signed-in user id")
	fs.StringVar(&site, "site", "", "website")
	fs.StringVar(&name, "name", "", "account username")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if userID == "" || site == "" || name == "" {
		return userError{msg: "missing required flags: --user, --site and --name"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptPassword("Password for " + site + ": ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	fields := map[string]string{
		"website":  site,
		"username": name,
		"password": string(pw),
	}
	result, recordID := svc.SealRecord(context.Background(), session.Identity{UserID: userID}, fields)
	if !result.Success {
		return userError{msg: result.Message}
	}
	fmt.Printf("record id: %s\n", recordID)
	return nil
}

func runRecordGet(args []string) error {
	fs := flag.NewFlagSet("record get", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	var userID, recordID string
	fs.StringVar(&userID, "user", "", "signed-in user id")
	fs.StringVar(&recordID, "id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if userID == "" || recordID == "" {
		return userError{msg: "missing required flags: --user and --id"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	result, fields := svc.OpenRecord(context.Background(), session.Identity{UserID: userID}, recordID)
	if !result.Success {
		return userError{msg: result.Message}
	}
	fmt.Printf("website:  %s\n", fields["website"])
	fmt.Printf("username: %s\n", fields["username"])
	fmt.Printf("password: %s\n", fields["password"])
	return nil
}

func runRecordList(args []string) error {
	fs := flag.NewFlagSet("record list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	result, ids := svc.ListRecordIDs(context.Background())
	if !result.Success {
		return userError{msg: result.Message}
	}
	if len(ids) == 0 {
		fmt.Println("no records")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runRecordDel(args []string) error {
	fs := flag.NewFlagSet("record del", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	var recordID string
	fs.StringVar(&recordID, "id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if recordID == "" {
		return userError{msg: "missing required flag: --id"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	if result := svc.DeleteRecord(context.Background(), recordID); !result.Success {
		return userError{msg: result.Message}
	}
	fmt.Println("record deleted")
	return nil
}

func runBioEnable(args []string) error {
	fs := flag.NewFlagSet("bio enable", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if result := svc.EnableBiometricUnlock(ctx); !result.Success {
		return userError{msg: result.Message}
	}
	state, err := svc.BiometricState(ctx)
	if err != nil {
		return err
	}
	if state.Fallback {
		fmt.Println("biometric unlock enabled (virtual key fallback)")
	} else {
		fmt.Println("biometric unlock enabled")
	}
	return nil
}

func runBioDisable(args []string) error {
	fs := flag.NewFlagSet("bio disable", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	if result := svc.DisableBiometricUnlock(context.Background()); !result.Success {
		return userError{msg: result.Message}
	}
	fmt.Println("biometric unlock disabled")
	return nil
}

func runBioStatus(args []string) error {
	fs := flag.NewFlagSet("bio status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, cleanup, err := openService(common)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := svc.BiometricState(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("available: %v\n", state.Available)
	if !state.Available && state.Reason != "" {
		fmt.Printf("reason:    %s\n", state.Reason)
	}
	fmt.Printf("enrolled:  %v\n", state.Enrolled)
	if state.Enrolled {
		fmt.Printf("fallback:  %v\n", state.Fallback)
	}
	return nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: epicvault <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  init --dir <vault-dir> [--bio]")
	fmt.Fprintln(os.Stderr, "  verify --dir <vault-dir>")
	fmt.Fprintln(os.Stderr, "  change --dir <vault-dir>")
	fmt.Fprintln(os.Stderr, "  status --dir <vault-dir>")
	fmt.Fprintln(os.Stderr, "  session --dir <vault-dir> --user <id> [--email <email>] [--fresh]")
	fmt.Fprintln(os.Stderr, "  generate [--length n] [--no-symbols] [--exclude-similar]")
	fmt.Fprintln(os.Stderr, "  record <add|get|list|del> --dir <vault-dir> ...")
	fmt.Fprintln(os.Stderr, "  bio <enable|disable|status> --dir <vault-dir>")
}

func printRecordUsage() {
	fmt.Fprintln(os.Stderr, "Usage: epicvault record <add|get|list|del>")
	fmt.Fprintln(os.Stderr, "  add  --dir <vault-dir> --user <id> --site <website> --name <username>")
	fmt.Fprintln(os.Stderr, "  get  --dir <vault-dir> --user <id> --id <record-id>")
	fmt.Fprintln(os.Stderr, "  list --dir <vault-dir>")
	fmt.Fprintln(os.Stderr, "  del  --dir <vault-dir> --id <record-id>")
}

func printBioUsage() {
	fmt.Fprintln(os.Stderr, "Usage: epicvault bio <enable|disable|status> --dir <vault-dir>")
}
