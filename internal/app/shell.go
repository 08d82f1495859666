package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"apex-trader/internal/access"
	"apex-trader/internal/model"
	"apex-trader/internal/order"
	"apex-trader/internal/portfolio"
	"apex-trader/internal/session"

	"github.com/charmbracelet/glamour"
)

const shellHelp = `Commands:
  go PATH                     open a screen (/, /portfolio, /admin, ...)
  menu                        list the screens you can open
  whoami                      show the session
  login USER PASS             log in and return to the screen that asked for it
  logout                      log out and go home
  signup FIRST LAST USER EMAIL PASS CONFIRM
  portfolio                   show holdings (fetches only when stale)
  refresh                     force a holdings fetch
  trade SYMBOL [PRICE]        open the order panel (PRICE only for symbols not held)
  symbol SYMBOL [PRICE]       switch the open order to another symbol
  side buy|sell               set the order side
  kind market|limit           set the order type
  qty N                       set the quantity
  price P                     set the limit price
  draft                       show the open order
  submit                      place the open order
  close                       discard the open order
  help                        this text
  quit                        leave the shell
`

// Shell is a line-oriented front end for an App. Each route path stands in
// for a screen.
type Shell struct {
	app *App
	out io.Writer

	// Plain disables terminal styling of markdown output.
	Plain bool

	route    string
	returnTo string
	renderer *glamour.TermRenderer
}

// NewShell returns a shell positioned at the home screen.
func NewShell(a *App, out io.Writer) *Shell {
	return &Shell{app: a, out: out, route: access.HomePath}
}

// Route is the screen currently shown.
func (sh *Shell) Route() string { return sh.route }

// Run bootstraps the session and executes lines from in until EOF or quit.
func (sh *Shell) Run(ctx context.Context, in io.Reader) error {
	if err := sh.app.Store.Bootstrap(ctx); err != nil {
		sh.printf("server unreachable, continuing logged out (%v)\n", err)
	}
	sh.printf("%s\n", sh.status())
	scanner := bufio.NewScanner(in)
	for {
		sh.printf("%s> ", sh.route)
		if !scanner.Scan() {
			sh.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := sh.Exec(ctx, line); err != nil {
			sh.printf("error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Exec runs one command line.
func (sh *Shell) Exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "help", "?":
		sh.printf("%s", shellHelp)
	case "go":
		if len(args) != 1 {
			return errors.New("usage: go PATH")
		}
		return sh.Go(ctx, args[0])
	case "menu":
		for _, p := range access.Menu(sh.app.Store.State()) {
			sh.printf("  %s\n", p)
		}
	case "whoami":
		sh.printf("%s\n", sh.status())
	case "login":
		if len(args) != 2 {
			return errors.New("usage: login USER PASS")
		}
		return sh.Login(ctx, model.Credentials{Username: args[0], Password: args[1]})
	case "logout":
		sh.app.Store.Logout(ctx)
		sh.printf("Logged out.\n")
		return sh.Go(ctx, access.HomePath)
	case "signup":
		if len(args) != 6 {
			return errors.New("usage: signup FIRST LAST USER EMAIL PASS CONFIRM")
		}
		return sh.Signup(ctx, model.SignupForm{
			FirstName: args[0], LastName: args[1], Username: args[2],
			Email: args[3], Password: args[4], ConfirmPassword: args[5],
		})
	case "portfolio":
		return sh.Go(ctx, "/portfolio")
	case "refresh":
		sh.app.View.Invalidate()
		return sh.Go(ctx, "/portfolio")
	case "trade", "symbol":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: %s SYMBOL [PRICE]", cmd)
		}
		price := ""
		if len(args) == 2 {
			price = args[1]
		}
		var err error
		if cmd == "trade" {
			err = sh.app.OpenTrade(args[0], price)
		} else {
			err = sh.app.SwitchSymbol(args[0], price)
		}
		if err != nil {
			return err
		}
		sh.showDraft()
	case "side", "kind", "qty", "price":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s VALUE", cmd)
		}
		if err := sh.edit(cmd, args[0]); err != nil {
			return err
		}
		sh.showDraft()
	case "draft":
		sh.showDraft()
	case "submit":
		return sh.submit(ctx)
	case "close":
		sh.app.Panel.Close()
		sh.printf("Order discarded.\n")
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

// Go navigates to path through the access gate.
func (sh *Shell) Go(ctx context.Context, path string) error {
	d, err := access.Navigate(sh.app.Store.State(), path)
	if err != nil {
		return err
	}
	if d.Loading() {
		sh.printf("Loading...\n")
		return nil
	}
	if d.Redirect != "" {
		if d.ReturnTo != "" {
			sh.returnTo = d.ReturnTo
		}
		sh.printf("Redirected to %s\n", d.Redirect)
		sh.route = d.Redirect
		return nil
	}
	sh.route = access.Normalize(path)
	if sh.route == "/portfolio" {
		return sh.showPortfolio(ctx)
	}
	return nil
}

// Login logs in and moves to the screen that required it, or home.
func (sh *Shell) Login(ctx context.Context, cred model.Credentials) error {
	u, err := sh.app.Store.Login(ctx, cred)
	if err != nil {
		var ae *model.AuthError
		switch {
		case errors.As(err, &ae):
			return ae
		case errors.Is(err, session.ErrSuperseded):
			return err
		default:
			return errors.New(model.MsgLoginError)
		}
	}
	name := u.Name
	if name == "" {
		name = u.Username
	}
	sh.printf("Welcome, %s.\n", name)
	target := sh.returnTo
	sh.returnTo = ""
	if target == "" {
		target = access.HomePath
	}
	return sh.Go(ctx, target)
}

// Signup registers an account and moves to the login screen.
func (sh *Shell) Signup(ctx context.Context, form model.SignupForm) error {
	if err := sh.app.Store.Signup(ctx, form); err != nil {
		var te *model.TransportError
		if errors.As(err, &te) {
			return errors.New(model.MsgLoginError)
		}
		return err
	}
	sh.printf("Registration successful. Please log in.\n")
	sh.route = access.LoginPath
	return nil
}

func (sh *Shell) edit(field, value string) error {
	switch field {
	case "side":
		s, err := order.ParseSide(value)
		if err != nil {
			return err
		}
		return sh.app.Panel.SetSide(s)
	case "kind":
		k, err := order.ParseKind(value)
		if err != nil {
			return err
		}
		return sh.app.Panel.SetKind(k)
	case "qty":
		return sh.app.Panel.SetQuantity(value)
	default:
		return sh.app.Panel.SetLimitPrice(value)
	}
}

func (sh *Shell) submit(ctx context.Context) error {
	res, err := sh.app.Submit(ctx)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case order.Accepted:
		msg := res.Message
		if msg == "" {
			msg = "Order placed."
		}
		if res.ConfirmationID != "" {
			msg += " (confirmation " + res.ConfirmationID + ")"
		}
		sh.printf("%s\n", msg)
		if sh.route == "/portfolio" {
			return sh.showPortfolio(ctx)
		}
		return nil
	case order.Rejected:
		if errors.Is(res.Err, model.ErrUnauthorized) {
			sh.printf("Session expired. Please log in again.\n")
			return sh.Go(ctx, sh.route)
		}
		return errors.New(res.Message)
	default:
		return fmt.Errorf("order not sent: %v", res.Err)
	}
}

func (sh *Shell) showDraft() {
	d, ok := sh.app.Panel.Draft()
	if !ok {
		sh.printf("No open order.\n")
		return
	}
	sh.printf("%s %s %s x%s", strings.ToUpper(string(d.Side)), d.Kind, d.Symbol, d.Quantity)
	if d.Kind == model.KindLimit {
		sh.printf(" @ %s", d.LimitPrice)
	}
	sh.printf("  held %d  estimated total %s\n", d.HeldShares, model.FormatUSD(d.EstimatedTotal()))
	if err := sh.app.Panel.Err(); err != nil {
		sh.printf("  ! %v\n", err)
	}
}

func (sh *Shell) showPortfolio(ctx context.Context) error {
	hs, err := sh.app.Holdings(ctx)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			sh.printf("Session expired. Please log in again.\n")
			return sh.Go(ctx, "/portfolio")
		}
		return fmt.Errorf("could not load portfolio: %w", err)
	}
	return sh.markdown(portfolio.Markdown(hs))
}

func (sh *Shell) markdown(md string) error {
	if sh.Plain {
		sh.printf("%s", md)
		return nil
	}
	if sh.renderer == nil {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("markdown renderer: %w", err)
		}
		sh.renderer = r
	}
	out, err := sh.renderer.Render(md)
	if err != nil {
		return err
	}
	sh.printf("%s", out)
	return nil
}

func (sh *Shell) status() string {
	s := sh.app.Store.State()
	switch {
	case s.IsAdmin():
		return fmt.Sprintf("Logged in as %s (admin)", s.User.Username)
	case s.IsAuthenticated():
		return fmt.Sprintf("Logged in as %s", s.User.Username)
	case s.Phase == session.Loading:
		return "Checking session..."
	case sh.app.Store.BootstrapErr() != nil:
		return "Not logged in (server unreachable)"
	default:
		return "Not logged in"
	}
}

func (sh *Shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}
