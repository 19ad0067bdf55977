// Command cp is a CLI client for the CodePilot service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/and161185/codepilot/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "codepilot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "codepilot")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

type dialOpts struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
}

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, o dialOpts, bearer string) (*grpc.ClientConn, *api.Client, error) {
	var creds credentials.TransportCredentials
	if o.plaintext {
		creds = grpcinsecure.NewCredentials()
	} else {
		c, err := loadTLS(o.caPath, o.insecure)
		if err != nil {
			return nil, nil, err
		}
		creds = c
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewClient(cc), nil
}

// dialAuthed dials with the saved token.
func dialAuthed(ctx context.Context, o dialOpts) (*grpc.ClientConn, *api.Client) {
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, cli, err := dial(ctx, o, token)
	if err != nil {
		fail(err)
	}
	return cc, cli
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `cp CLI
Usage:
  cp -addr HOST:PORT [-cacert file | -insecure | -plaintext] [-json] <cmd> [args]

Commands:
  version
  register   -email <email> -p <password>
  login      -email <email> -p <password>          (saves token)
  dashboard                                        (profile + recent activity)
  tools                                            (tool catalog with prices)
  use        -tool <name> -input <text|@file|->    (spends credits)
  profile    [-name <display name>] [-plan Free|Pro|Team]
  watch                                            (streams live changes)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "disable TLS (dev server without cert)")
	asJSON := flag.Bool("json", false, "print raw JSON responses")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	o := dialOpts{addr: *addr, caPath: *caPath, insecure: *insecure, plaintext: *plaintext}

	switch cmd {
	case "version":
		fmt.Printf("cp %s (%s)\n", version, buildDate)
	case "register":
		cmdRegister(args, o)
	case "login":
		cmdLogin(args, o)
	case "dashboard":
		cmdDashboard(o, *asJSON)
	case "tools":
		cmdTools(o, *asJSON)
	case "use":
		cmdUse(args, o, *asJSON)
	case "profile":
		cmdProfile(args, o, *asJSON)
	case "watch":
		cmdWatch(o, *asJSON)
	default:
		usage()
	}
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
