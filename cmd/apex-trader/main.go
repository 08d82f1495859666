package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"apex-trader/internal/api"
	"apex-trader/internal/app"
	"apex-trader/internal/broker"
	"apex-trader/internal/config"
	"apex-trader/internal/credential"
	"apex-trader/internal/metrics"
	"apex-trader/internal/model"

	"github.com/spf13/cobra"
)

// Set by ldflags at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log.SetFlags(log.Ltime)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.FromEnv()
	var plain bool

	root := &cobra.Command{
		Use:          "apex-trader",
		Short:        "Terminal client for the Apex trading platform",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.Backend, "backend", cfg.Backend, "backend: apex, paper or longbridge")
	pf.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Apex API base URL")
	pf.StringVar(&cfg.SessionFile, "session-file", cfg.SessionFile, "where session cookies are kept")
	pf.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	pf.StringVar(&cfg.Credential, "credential", cfg.Credential, "Longbridge credential file")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	pf.BoolVar(&plain, "plain", false, "print markdown without terminal styling")

	// withShell runs fn against a freshly bootstrapped session.
	withShell := func(cmd *cobra.Command, fn func(sh *app.Shell) error) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Store.Bootstrap(cmd.Context()); err != nil {
			log.Printf("continuing logged out")
		}
		sh := app.NewShell(a, cmd.OutOrStdout())
		sh.Plain = plain
		return fn(sh)
	}
	// oneShot runs shell lines, stopping at the first error.
	oneShot := func(cmd *cobra.Command, lines ...string) error {
		return withShell(cmd, func(sh *app.Shell) error {
			for _, l := range lines {
				if err := sh.Exec(cmd.Context(), l); err != nil {
					return err
				}
			}
			return nil
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "session",
		Short: "Show who is logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, "whoami")
		},
	})

	var password string
	login := &cobra.Command{
		Use:   "login USER",
		Short: "Log in (password from --password or the first line of stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := password
			if pw == "" {
				var err error
				if pw, err = readLine(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}
			cred := model.Credentials{Username: args[0], Password: pw}
			return withShell(cmd, func(sh *app.Shell) error { return sh.Login(cmd.Context(), cred) })
		},
	}
	login.Flags().StringVarP(&password, "password", "p", "", "password")
	root.AddCommand(login)

	root.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, "logout")
		},
	})

	var su struct{ first, last, user, email, pass, confirm string }
	signup := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form := model.SignupForm{
				FirstName: su.first, LastName: su.last, Username: su.user,
				Email: su.email, Password: su.pass, ConfirmPassword: su.confirm,
			}
			return withShell(cmd, func(sh *app.Shell) error { return sh.Signup(cmd.Context(), form) })
		},
	}
	sf := signup.Flags()
	sf.StringVar(&su.first, "first", "", "first name")
	sf.StringVar(&su.last, "last", "", "last name")
	sf.StringVar(&su.user, "username", "", "username")
	sf.StringVar(&su.email, "email", "", "email")
	sf.StringVar(&su.pass, "password", "", "password")
	sf.StringVar(&su.confirm, "confirm", "", "password again")
	root.AddCommand(signup)

	root.AddCommand(&cobra.Command{
		Use:   "portfolio",
		Short: "Show holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, "portfolio")
		},
	})

	var side, kind, price string
	trade := &cobra.Command{
		Use:   "trade SYMBOL QTY",
		Short: "Place one order",
		Long: `Place one order. A held symbol is priced from the portfolio;
any other symbol needs --price as its reference price.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			open := "trade " + args[0]
			if price != "" {
				open += " " + price
			}
			lines := []string{"portfolio", open, "side " + side, "kind " + kind, "qty " + args[1]}
			if price != "" && kind == "limit" {
				lines = append(lines, "price "+price)
			}
			return oneShot(cmd, append(lines, "submit")...)
		},
	}
	tf := trade.Flags()
	tf.StringVar(&side, "side", "buy", "buy or sell")
	tf.StringVar(&kind, "type", "market", "market or limit")
	tf.StringVar(&price, "price", "", "reference price, or the limit price for --type limit")
	root.AddCommand(trade)

	root.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if cfg.MetricsAddr != "" {
				srv := serveMetrics(cfg.MetricsAddr)
				defer srv.Close()
			}
			sh := app.NewShell(a, cmd.OutOrStdout())
			sh.Plain = plain
			return sh.Run(cmd.Context(), cmd.InOrStdin())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apex-trader %s (built %s)\n", Version, BuildTime)
		},
	})

	return root
}

// newApp connects the configured backend.
func newApp(cfg config.Config) (*app.App, error) {
	switch cfg.Backend {
	case config.BackendPaper:
		log.Println("running against the in-memory PAPER backend")
		return app.New(broker.NewPaper(nil)), nil
	case config.BackendLongbridge:
		lc, err := credential.Load(cfg.Credential)
		if err != nil {
			return nil, err
		}
		gw, err := broker.NewLongbridge(lc)
		if err != nil {
			return nil, err
		}
		return app.New(gw), nil
	default:
		c, err := api.New(cfg.APIURL,
			api.WithTimeout(cfg.HTTPTimeout),
			api.WithSessionFile(cfg.SessionFile),
		)
		if err != nil {
			return nil, err
		}
		return app.New(c), nil
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	return srv
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
