package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/md-rashed-zaman/photobook/libs/runtime"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/accounts"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/client"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
)

const usage = `usage: bookctl [-base-url URL] <command> [flags]

commands:
  register      -username -email -phone -instagram -password
  login         -email -password
  logout
  whoami
  packages      [-cards]
  slots         -package ID -date YYYY-MM-DD
  book          -package ID -date YYYY-MM-DD -time HH:MM
  bookings
  admin list
  admin audit   [-limit N] [-type PREFIX] [-actor USER_ID]
  admin set-status -id BOOKING_ID -status confirmed|cancelled|pending
`

func main() {
	ctx, stop := runtime.SignalContext()
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fatal(err.Error())
	}
}

type app struct {
	api     *client.Client
	session *client.Session
	store   string
	out     io.Writer
	tz      string
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("bookctl", flag.ContinueOnError)
	global.SetOutput(out)
	baseURL := global.String("base-url", runtime.Getenv("BOOKCTL_BASE_URL", "http://localhost:8083"), "booking service base url")
	sessionFile := global.String("session", runtime.Getenv("BOOKCTL_SESSION", defaultSessionPath()), "file the session is kept in")
	tz := global.String("tz", runtime.Getenv("BOOKCTL_TZ", ""), "studio timezone for date checks (defaults to the server's)")
	global.Usage = func() { fmt.Fprint(out, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	api := client.New(*baseURL, nil)
	a := &app{api: api, session: client.NewSession(api), store: *sessionFile, out: out, tz: *tz}
	defer a.session.Close()
	a.restore(ctx)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "register":
		return a.register(ctx, cmdArgs)
	case "login":
		return a.login(ctx, cmdArgs)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami()
	case "packages":
		return a.packages(ctx, cmdArgs)
	case "slots":
		return a.slots(ctx, cmdArgs)
	case "book":
		return a.book(ctx, cmdArgs)
	case "bookings":
		return a.bookings(ctx)
	case "admin":
		return a.admin(ctx, cmdArgs)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var in accounts.Registration
	fs.StringVar(&in.Username, "username", "", "username")
	fs.StringVar(&in.Email, "email", "", "email")
	fs.StringVar(&in.Phone, "phone", "", "mobile phone")
	fs.StringVar(&in.Instagram, "instagram", "", "instagram account")
	fs.StringVar(&in.Password, "password", "", "password (at least 6 characters)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := a.api.Register(ctx, in)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			for field, msg := range apiErr.Fields {
				fmt.Fprintf(a.out, "  %s: %s\n", field, msg)
			}
		}
		return err
	}
	fmt.Fprintf(a.out, "registered %s (%s); sign in with bookctl login\n", user.Email, user.ID)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "email")
	password := fs.String("password", runtime.Getenv("BOOKCTL_PASSWORD", ""), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.session.SignIn(ctx, *email, *password); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", a.session.User().Email, a.session.Role())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	err := a.session.SignOut(ctx)
	if rmErr := os.Remove(a.store); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func (a *app) whoami() error {
	if !a.session.Authenticated() {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s %s role=%s\n", a.session.User().ID, a.session.User().Email, a.session.Role())
	return nil
}

func (a *app) packages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("packages", flag.ContinueOnError)
	fs.SetOutput(a.out)
	cards := fs.Bool("cards", false, "group packages into display cards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if *cards {
		list, err := a.api.Cards(ctx)
		if err != nil {
			return err
		}
		for _, c := range list {
			if c.Selectable() {
				price := ""
				if c.Price != nil {
					price = c.Price.StringFixed(2)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d min\n", c.ID, c.Name, price, c.DurationMinutes)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", c.ID, c.Name, c.Description)
			for _, opt := range c.Options {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%d min\n", opt.ID, opt.Name, opt.Price.StringFixed(2), opt.DurationMinutes)
			}
		}
		return nil
	}

	list, err := a.api.Packages(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no packages available")
		return nil
	}
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d min\n", p.ID, p.Name, p.Price.StringFixed(2), p.DurationMinutes)
	}
	return nil
}

func (a *app) slots(ctx context.Context, args []string) error {
	if err := a.require(client.RouteBooking); err != nil {
		return err
	}
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	fs.SetOutput(a.out)
	pkgID := fs.String("package", "", "package id")
	date := fs.String("date", "", "day (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := a.api.Slots(ctx, *pkgID, *date)
	if err != nil {
		return err
	}
	if len(res.Slots) == 0 {
		fmt.Fprintln(a.out, "no slots for this day")
		return nil
	}
	for _, s := range res.Slots {
		mark := "free"
		if !s.Available {
			mark = "taken"
		}
		fmt.Fprintf(a.out, "%s  %s\n", s.Label, mark)
	}
	return nil
}

// book drives the same wizard a graphical client would.
func (a *app) book(ctx context.Context, args []string) error {
	if err := a.require(client.RouteBooking); err != nil {
		return err
	}
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.SetOutput(a.out)
	pkgID := fs.String("package", "", "package id")
	date := fs.String("date", "", "day (YYYY-MM-DD)")
	label := fs.String("time", "", "slot start (HH:MM)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	packages, err := a.api.Packages(ctx)
	if err != nil {
		return err
	}
	var pkg *model.Package
	for i := range packages {
		if packages[i].ID == *pkgID {
			pkg = &packages[i]
		}
	}
	if pkg == nil {
		return fmt.Errorf("unknown package %q", *pkgID)
	}

	w := client.NewWizard(a.api, a.location(ctx, pkg.ID, *date))
	if err := w.SelectPackage(ctx, *pkg); err != nil {
		return err
	}
	if err := w.SelectDate(ctx, *date); err != nil {
		return err
	}
	if err := w.SelectTime(*label); err != nil {
		return fmt.Errorf("%s: %w", *label, err)
	}
	if err := w.Review(); err != nil {
		return err
	}
	b, err := w.Confirm(ctx)
	if err != nil {
		if client.IsConflict(err) {
			free := 0
			for _, s := range w.State().Slots {
				if s.Available {
					free++
				}
			}
			return fmt.Errorf("%w (%d slots still free that day)", err, free)
		}
		return err
	}
	fmt.Fprintf(a.out, "booking #%s created: %s %s-%s, status %s\n",
		b.ShortID(), pkg.Name, b.StartTime.Format("2006-01-02 15:04"), b.EndTime.Format("15:04"), b.Status)
	return nil
}

func (a *app) bookings(ctx context.Context) error {
	if err := a.require(client.RouteDashboard); err != nil {
		return err
	}
	views, err := a.api.MyBookings(ctx)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintln(a.out, "no bookings yet")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, v := range views {
		fmt.Fprintf(tw, "#%s\t%s\t%s\t%s\n", v.ShortID, v.PackageName, v.StartTime.Format("2006-01-02 15:04"), v.Status)
	}
	return nil
}

func (a *app) admin(ctx context.Context, args []string) error {
	if err := a.require(client.RouteAdmin); err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("admin: expected list, audit or set-status")
	}
	switch args[0] {
	case "list":
		overview, err := a.api.AdminBookings(ctx)
		if err != nil {
			return err
		}
		s := overview.Stats
		fmt.Fprintf(a.out, "earnings %s  pending %d  total %d\n", s.TotalEarnings.StringFixed(2), s.PendingCount, s.TotalBookings)
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		for _, v := range overview.Bookings {
			customer := "-"
			if v.Customer != nil {
				customer = strings.TrimSpace(v.Customer.FullName + " " + v.Customer.Phone)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.PackageName, v.StartTime.Format("2006-01-02 15:04"), customer, v.Status)
		}
		return nil
	case "audit":
		fs := flag.NewFlagSet("audit", flag.ContinueOnError)
		fs.SetOutput(a.out)
		var filter storage.AuditFilter
		fs.IntVar(&filter.Limit, "limit", 20, "number of events")
		fs.StringVar(&filter.Type, "type", "", "event type prefix, e.g. booking.")
		fs.StringVar(&filter.ActorID, "actor", "", "only events by this user id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		events, err := a.api.AdminAudit(ctx, filter)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt, e.EventType, e.ActorID, e.Metadata)
		}
		return nil
	case "set-status":
		fs := flag.NewFlagSet("set-status", flag.ContinueOnError)
		fs.SetOutput(a.out)
		id := fs.String("id", "", "booking id")
		status := fs.String("status", "", "confirmed, cancelled or pending")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := a.api.SetBookingStatus(ctx, *id, model.Status(*status)); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "booking %s is now %s\n", *id, *status)
		return nil
	default:
		return fmt.Errorf("admin: unknown command %q", args[0])
	}
}

// require checks navigation rules before calling the server, which enforces them again.
func (a *app) require(route client.Route) error {
	if got := a.session.Navigate(route); got != route {
		if got == client.RouteLogin {
			return errors.New("not signed in: run bookctl login")
		}
		return fmt.Errorf("%s is not available to this account", route)
	}
	return nil
}

// location prefers -tz, then asks the server which zone slot dates are in.
func (a *app) location(ctx context.Context, pkgID, date string) *time.Location {
	name := a.tz
	if name == "" {
		if res, err := a.api.Slots(ctx, pkgID, date); err == nil {
			name = res.Timezone
		}
	}
	if loc, err := time.LoadLocation(name); err == nil && name != "" {
		return loc
	}
	return time.Local
}

func (a *app) restore(ctx context.Context) {
	raw, err := os.ReadFile(a.store)
	if err != nil {
		return
	}
	var tokens identity.Session
	if err := json.Unmarshal(raw, &tokens); err != nil || tokens.AccessToken == "" {
		return
	}
	if !tokens.ExpiresAt.IsZero() && time.Now().After(tokens.ExpiresAt) {
		a.session.Restore(ctx, tokens)
		if err := a.session.Refresh(ctx); err == nil {
			_ = a.save()
		}
		return
	}
	a.session.Restore(ctx, tokens)
}

func (a *app) save() error {
	raw, err := json.Marshal(a.session.Tokens())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.store), 0o700); err != nil {
		return err
	}
	return os.WriteFile(a.store, raw, 0o600)
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".bookctl-session.json"
	}
	return filepath.Join(dir, "photobook", "session.json")
}

func fatal(msg string) {
	_, _ = os.Stderr.WriteString(msg + "\n")
	os.Exit(1)
}
