// Package cli implements the unhazzle command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	apiclient "github.com/splax/unhazzle/pkg/api/client"
)

const (
	defaultAPIURL  = "http://localhost:4000"
	keyAPIURL      = "api_url"
	keyToken       = "token"
	requestTimeout = 15 * time.Second
)

var buildVersion = "dev"

// app carries the state shared by every command.
type app struct {
	cfg     *viper.Viper
	cfgFile string
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	styled  bool
}

// Execute runs the CLI against the process arguments.
func Execute() {
	if err := NewRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand wires the command tree to the given streams.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{cfg: viper.New(), in: in, out: out, errOut: errOut, styled: isTerminal(out)}
	root := &cobra.Command{
		Use:           "unhazzle",
		Short:         "Plan, price and deploy container environments",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.unhazzle.yaml)")
	root.PersistentFlags().String("api-url", defaultAPIURL, "unhazzle API endpoint")
	_ = a.cfg.BindPFlag(keyAPIURL, root.PersistentFlags().Lookup("api-url"))

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.statusCommand(),
		a.estimateCommand(),
		a.manifestCommand(),
		a.envCommand(),
		a.deployCommand(),
	)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	wrapErrors(root, a)
	return root
}

// wrapErrors prints failures once with the error style.
func wrapErrors(cmd *cobra.Command, a *app) {
	for _, sub := range cmd.Commands() {
		wrapErrors(sub, a)
	}
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		err := run(c, args)
		if err != nil {
			a.showError(err.Error())
		}
		return err
	}
}

func (a *app) configPath() (string, error) {
	if a.cfgFile != "" {
		return a.cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".unhazzle.yaml"), nil
}

func (a *app) loadConfig() error {
	path, err := a.configPath()
	if err != nil {
		return err
	}
	a.cfg.SetConfigFile(path)
	a.cfg.SetConfigType("yaml")
	a.cfg.SetEnvPrefix("unhazzle")
	a.cfg.AutomaticEnv()
	if err := a.cfg.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func (a *app) saveConfig() error {
	path, err := a.configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := a.cfg.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

func (a *app) client() (*apiclient.Client, error) {
	return apiclient.New(a.cfg.GetString(keyAPIURL))
}

// token returns the stored session token or a hint to log in.
func (a *app) token() (string, error) {
	tok := strings.TrimSpace(a.cfg.GetString(keyToken))
	if tok == "" {
		return "", errors.New("not signed in, run: unhazzle login")
	}
	return tok, nil
}

func (a *app) authed() (*apiclient.Client, string, error) {
	tok, err := a.token()
	if err != nil {
		return nil, "", err
	}
	cli, err := a.client()
	if err != nil {
		return nil, "", err
	}
	return cli, tok, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, requestTimeout)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
