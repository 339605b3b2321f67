package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mattpollicove/p1person/config"
	"github.com/mattpollicove/p1person/core"
	"github.com/mattpollicove/p1person/logfile"
	"github.com/mattpollicove/p1person/pingone"
	"github.com/mattpollicove/p1person/reconcile"
	"github.com/mattpollicove/p1person/security"
	sqlstore "github.com/mattpollicove/p1person/store/sql"
)

const version = "0.2.0"

const (
	settingsFile = "p1person.properties"
	keyFile      = "p1person.key"
	activityDSN  = "file:p1person.db?_foreign_keys=on"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

type cliFlags struct {
	prefix          string
	clear           bool
	remove          bool
	display         bool
	testConnection  bool
	dryRun          bool
	newConnection   bool
	additionalAttrs bool
	yes             bool
	history         bool
	showVersion     bool
	skynet          bool
	cyberdyne       bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	if flags.showVersion {
		fmt.Printf("p1person %s\n", version)
		return exitOK
	}
	if err := validateFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := execute(ctx, flags)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user.")
			return exitInterrupted
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitError
	}
	return code
}

func parseFlags(args []string) (cliFlags, error) {
	var flags cliFlags
	fs := pflag.NewFlagSet("p1person", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVarP(&flags.prefix, "prefix", "p", "", "prepend a unique string to attribute names (can be used with -r to remove prefixed attributes)")
	fs.BoolVarP(&flags.clear, "clear", "c", false, "clear any assigned values for existing attributes (cannot be used with -r)")
	fs.BoolVarP(&flags.remove, "remove", "r", false, "remove the set of attributes (use with -p to remove prefixed attributes)")
	fs.BoolVarP(&flags.display, "display", "d", false, "show the attributes defined in the system (cannot be used with -r)")
	fs.BoolVarP(&flags.testConnection, "testconnection", "t", false, "test connection properties from "+settingsFile+" (standalone only)")
	fs.BoolVar(&flags.dryRun, "dryrun", false, "test operations without making changes, display errors or info from PingOne")
	fs.BoolVarP(&flags.newConnection, "newconnection", "n", false, "initiate dialog to update connection information in "+settingsFile)
	fs.BoolVarP(&flags.additionalAttrs, "additionalattributes", "a", false, "read custom list of attributes from "+settingsFile)
	fs.BoolVarP(&flags.yes, "yes", "y", false, "automatically accept all confirmations (use with -r or -c)")
	fs.BoolVar(&flags.history, "history", false, "show recent connections and API calls from the local audit database")
	fs.BoolVarP(&flags.showVersion, "version", "v", false, "print the version and exit")
	fs.BoolVar(&flags.skynet, "Skynet", false, "")
	fs.BoolVar(&flags.cyberdyne, "Cyberdyne", false, "")
	fs.MarkHidden("Skynet")
	fs.MarkHidden("Cyberdyne")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return flags, nil
}

func validateFlags(flags cliFlags) error {
	if flags.testConnection {
		if flags.prefix != "" || flags.clear || flags.remove || flags.display ||
			flags.dryRun || flags.newConnection || flags.additionalAttrs || flags.history {
			return errors.New("ERROR: -t/--testconnection cannot be used with other arguments")
		}
	}
	if flags.history {
		if flags.prefix != "" || flags.clear || flags.remove || flags.display ||
			flags.dryRun || flags.newConnection || flags.additionalAttrs {
			return errors.New("ERROR: --history cannot be used with other arguments")
		}
	}
	if flags.clear && flags.remove {
		return errors.New("ERROR: -c/--clear cannot be used with -r/--remove")
	}
	if flags.display && flags.remove {
		return errors.New("ERROR: -d/--display cannot be used with -r/--remove")
	}
	return nil
}

// app bundles the wired collaborators for one invocation.
type app struct {
	store      *config.Store
	prompt     *prompter
	apiLogger  core.Logger
	connLogger core.Logger
	sink       core.ActivitySink
	activity   *sqlstore.ActivityStore
}

func execute(ctx context.Context, flags cliFlags) (int, error) {
	apiLogger, err := logfile.New("apilog", "INFO")
	if err != nil {
		return exitError, fmt.Errorf("failed to setup logging: %w", err)
	}
	connLogger, err := logfile.New("connections", "INFO")
	if err != nil {
		return exitError, fmt.Errorf("failed to setup logging: %w", err)
	}

	kf, err := security.NewKeyFile(keyFile)
	if err != nil {
		return exitError, err
	}
	key, err := kf.LoadOrCreate()
	if err != nil {
		return exitError, err
	}
	secrets, err := security.NewAESSecretProvider(key)
	if err != nil {
		return exitError, err
	}
	store, err := config.NewStore(settingsFile, secrets)
	if err != nil {
		return exitError, err
	}

	a := &app{
		store:      store,
		prompt:     newPrompter(),
		apiLogger:  apiLogger,
		connLogger: connLogger,
	}

	if db, err := sqlstore.Open(activityDSN); err == nil {
		activity, err := sqlstore.NewActivityStore(db)
		if err == nil && activity.Init(ctx) == nil {
			a.sink = activity
			a.activity = activity
		} else {
			apiLogger.Warn("activity store unavailable", "error", err)
		}
		defer db.Close()
	} else {
		apiLogger.Warn("activity database unavailable", "error", err)
	}

	if flags.history {
		return a.printHistory(ctx)
	}

	if flags.newConnection {
		if err := a.configure(ctx, true); err != nil {
			return exitError, err
		}
		return exitOK, nil
	}

	if !a.store.Exists() {
		fmt.Println("No configuration file found. Starting connection setup...")
		if err := a.configure(ctx, true); err != nil {
			return exitError, err
		}
	}

	cfg, cred, err := a.store.Load(ctx)
	if err != nil {
		if core.IsDecryptFailure(err) {
			fmt.Println("Stored credentials cannot be decrypted on this machine. Starting connection setup...")
			if err := a.configure(ctx, false); err != nil {
				return exitError, err
			}
			cfg, cred, err = a.store.Load(ctx)
		}
		if err != nil {
			fmt.Printf("Configuration error: %v\n", err)
			return exitError, nil
		}
	}

	// Reopen loggers at the configured levels.
	if logger, err := logfile.New("apilog", cfg.Logging.APILevel); err == nil {
		a.apiLogger = logger
	}
	if logger, err := logfile.New("connections", cfg.Logging.ConnectionLevel); err == nil {
		a.connLogger = logger
	}

	// Runtime flags override the stored configuration.
	resolved, err := core.GoOptionsResolver{}.Resolve(core.DefaultConfig(), cfg, core.Config{
		AttributePrefix: flags.prefix,
	})
	if err != nil {
		return exitError, err
	}
	resolved.EnvironmentID = cred.EnvironmentID
	resolved.ClientID = cred.ClientID

	client, schema, err := a.buildClient(resolved, cred)
	if err != nil {
		return exitError, err
	}

	if flags.testConnection {
		fmt.Printf("Testing connection to PingOne environment: %s...\n", resolved.FriendlyName)
		envName, err := client.TestConnection(ctx)
		if err != nil {
			fmt.Printf("Connection failed: %v\n", err)
			return a.reconfigureLoop(ctx)
		}
		fmt.Println("Connection successful.")
		a.noteConnection(ctx, resolved.FriendlyName, envName)
		return exitOK, nil
	}

	envName, err := client.TestConnection(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return exitError, err
		}
		fmt.Printf("Connection failed: %v\n", err)
		return a.reconfigureLoop(ctx)
	}
	a.noteConnection(ctx, resolved.FriendlyName, envName)

	spec, err := selectSpec(resolved, flags)
	if err != nil {
		fmt.Println(err)
		return exitError, nil
	}

	reconciler, err := reconcile.New(schema,
		reconcile.WithLogger(a.apiLogger),
		reconcile.WithDryRun(flags.dryRun),
	)
	if err != nil {
		return exitError, err
	}

	switch {
	case flags.display:
		fmt.Printf("\nDisplaying attributes in PingOne environment: %s\n\n", resolved.FriendlyName)
		attrs, err := schema.ListAttributes(ctx)
		if err != nil {
			return exitError, err
		}
		return exitOK, reconcile.WriteAttributeTable(os.Stdout, attrs, spec)

	case flags.remove:
		fmt.Printf("\nRemoving attributes from PingOne environment: %s\n", resolved.FriendlyName)
		if !flags.yes && !flags.dryRun {
			ok, err := a.confirmDestructive(flags, len(spec),
				"remove", "This action cannot be undone.")
			if err != nil || !ok {
				return exitOK, err
			}
		}
		summary, err := reconciler.Remove(ctx, spec)
		if err != nil {
			return exitError, err
		}
		return exitOK, reconcile.WriteReport(os.Stdout, summary)

	case flags.clear:
		fmt.Printf("\nClearing attribute values in PingOne environment: %s\n", resolved.FriendlyName)
		if !flags.yes && !flags.dryRun {
			ok, err := a.confirmDestructive(flags, len(spec),
				"clear values for", "This will remove all data from these attributes for all users.")
			if err != nil || !ok {
				return exitOK, err
			}
		}
		summary, err := reconciler.Clear(ctx, spec)
		if err != nil {
			return exitError, err
		}
		return exitOK, reconcile.WriteReport(os.Stdout, summary)

	default:
		fmt.Printf("\nCreating attributes in PingOne environment: %s\n", resolved.FriendlyName)
		summary, err := reconciler.Apply(ctx, spec)
		if err != nil {
			return exitError, err
		}
		if err := reconcile.WriteReport(os.Stdout, summary); err != nil {
			return exitError, err
		}
		if flags.skynet && !flags.dryRun {
			a.createEasterEggUser(ctx, client, schema, spec, sarahConnor(),
				"Skynet Protocol Activated: Creating resistance fighter...",
				"Come with me if you want to live.")
		}
		if flags.cyberdyne && !flags.dryRun {
			a.createEasterEggUser(ctx, client, schema, spec, milesDyson(),
				"Cyberdyne Systems Initiated: Creating lead architect...",
				"I feel like I'm gonna throw up.")
		}
		return exitOK, nil
	}
}

func (a *app) buildClient(cfg core.Config, cred core.Credential) (*pingone.Client, *pingone.SchemaAPI, error) {
	tokens, err := pingone.NewTokenSource(pingone.TokenSourceConfig{
		Credential: cred,
		Logger:     a.apiLogger,
	})
	if err != nil {
		return nil, nil, err
	}
	opts := []pingone.Option{pingone.WithLogger(a.apiLogger)}
	if a.sink != nil {
		opts = append(opts, pingone.WithActivitySink(a.sink))
	}
	client, err := pingone.New(cfg, tokens, opts...)
	if err != nil {
		return nil, nil, err
	}
	schema, err := pingone.NewSchemaAPI(client)
	if err != nil {
		return nil, nil, err
	}
	return client, schema, nil
}

// configure runs the connection dialog and saves the result. When offerTest
// is set it also offers an immediate connection test.
func (a *app) configure(ctx context.Context, offerTest bool) error {
	current := core.Config{}
	if a.store.Exists() {
		if cfg, _, err := a.store.Load(ctx); err == nil {
			current = cfg
		}
	}
	cfg, cred, err := a.prompt.collectConnection(current)
	if err != nil {
		return err
	}
	if err := a.store.Save(cfg, cred); err != nil {
		return err
	}
	fmt.Println("Connection configuration saved successfully.")

	if !offerTest {
		return nil
	}
	test, err := a.prompt.confirm("Test the connection now?")
	if err != nil || !test {
		return err
	}
	client, _, err := a.buildClient(cfg, cred)
	if err != nil {
		return err
	}
	envName, err := client.TestConnection(ctx)
	if err != nil {
		fmt.Printf("Connection failed: %v\n", err)
		return nil
	}
	fmt.Println("Connection successful.")
	a.noteConnection(ctx, cfg.FriendlyName, envName)
	return nil
}

// reconfigureLoop offers to re-enter connection details and re-test until
// the connection succeeds or the user gives up.
func (a *app) reconfigureLoop(ctx context.Context) (int, error) {
	for {
		if ctx.Err() != nil {
			return exitError, ctx.Err()
		}
		retry, err := a.prompt.confirm("Would you like to reconfigure the connection?")
		if err != nil {
			return exitError, err
		}
		if !retry {
			return exitError, nil
		}
		if err := a.configure(ctx, false); err != nil {
			return exitError, err
		}
		cfg, cred, err := a.store.Load(ctx)
		if err != nil {
			fmt.Printf("Configuration error: %v\n", err)
			continue
		}
		client, _, err := a.buildClient(cfg, cred)
		if err != nil {
			return exitError, err
		}
		envName, err := client.TestConnection(ctx)
		if err != nil {
			fmt.Printf("Connection failed: %v\n", err)
			continue
		}
		a.noteConnection(ctx, cfg.FriendlyName, envName)
		fmt.Println("\nConnection successful! Please run the command again.")
		return exitOK, nil
	}
}

// printHistory renders the recorded connections and API calls from the
// local audit database, newest first.
func (a *app) printHistory(ctx context.Context) (int, error) {
	if a.activity == nil {
		return exitError, fmt.Errorf("activity history is unavailable: audit database could not be opened")
	}

	conns, err := a.activity.ListConnections(ctx, 10)
	if err != nil {
		return exitError, err
	}
	fmt.Println("\nRecent connections:")
	if len(conns) == 0 {
		fmt.Println("  (none)")
	}
	for _, conn := range conns {
		name := conn.Environment
		if name == "" {
			name = "-"
		}
		fmt.Printf("  %s  %-20s %s\n", conn.StartedAt.Format("2006-01-02 15:04:05"), conn.FriendlyName, name)
	}

	page, err := a.activity.ListCalls(ctx, sqlstore.CallFilter{PerPage: 25})
	if err != nil {
		return exitError, err
	}
	fmt.Printf("\nRecent API calls (%d of %d):\n", len(page.Items), page.Total)
	if len(page.Items) == 0 {
		fmt.Println("  (none)")
	}
	for _, call := range page.Items {
		fmt.Printf("  %s  %-6s %3d %9.2fms  %s\n",
			call.StartedAt.Format("2006-01-02 15:04:05"), call.Method, call.StatusCode, call.ElapsedMS, call.URL)
		if call.Err != "" {
			fmt.Printf("%25s%s\n", "", call.Err)
		}
	}
	return exitOK, nil
}

// noteConnection logs a verified connection and records it in the audit
// store when one is available.
func (a *app) noteConnection(ctx context.Context, friendly, envName string) {
	a.connLogger.Info("connection verified", "environment", friendly, "environment_name", envName)
	if a.sink == nil {
		return
	}
	rec := core.ConnectionRecord{
		FriendlyName: friendly,
		Environment:  envName,
		StartedAt:    time.Now().UTC(),
	}
	if err := a.sink.RecordConnection(ctx, rec); err != nil {
		a.connLogger.Warn("failed to record connection", "error", err)
	}
}

func (a *app) confirmDestructive(flags cliFlags, count int, verb, consequence string) (bool, error) {
	attrType := "default"
	if flags.additionalAttrs {
		attrType = "additional"
	}
	fmt.Printf("\nWARNING: You are about to %s %d %s attribute(s).\n%s\n\n", verb, count, attrType, consequence)
	ok, err := a.prompt.confirm("Are you sure you want to continue?")
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Println("\nOperation cancelled.")
	}
	return ok, nil
}

func selectSpec(cfg core.Config, flags cliFlags) (core.AttributeSpec, error) {
	if flags.additionalAttrs {
		if len(cfg.AdditionalAttrs) == 0 {
			return nil, fmt.Errorf("No additional attributes defined in %s", settingsFile)
		}
		spec := core.AttributeSpec(cfg.AdditionalAttrs)
		return spec.WithPrefix(cfg.AttributePrefix), nil
	}
	return core.DefaultAttributeSpec().WithPrefix(cfg.AttributePrefix), nil
}

// createEasterEggUser provisions a demo user once the managed attributes
// are present on the schema.
func (a *app) createEasterEggUser(ctx context.Context, client *pingone.Client, schema *pingone.SchemaAPI, spec core.AttributeSpec, user pingone.User, banner, tagline string) {
	attrs, err := schema.ListAttributes(ctx)
	if err != nil {
		return
	}
	present := false
	for _, attr := range attrs {
		if _, ok := spec[attr.Name]; ok {
			present = true
			break
		}
	}
	if !present {
		return
	}

	fmt.Println("\n" + divider())
	fmt.Println(banner)
	fmt.Println(divider())

	created, err := client.CreateUser(ctx, user)
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		return
	}
	fmt.Printf("User created successfully: %s\n", created.Username)
	fmt.Printf("  User ID: %s\n", created.ID)
	fmt.Printf("  Email: %s\n", created.Email)
	fmt.Printf("  Name: %s %s\n", created.Name.Given, created.Name.Family)
	fmt.Printf("\n  %s\n", tagline)
}

func divider() string {
	return "======================================================================"
}

func sarahConnor() pingone.User {
	return pingone.User{
		Username:          "sconnor",
		Email:             "sconnor@theresistance.org",
		Name:              pingone.UserName{Given: "Sarah", Family: "Connor"},
		Lifecycle:         &pingone.UserLifecycle{Status: "ACCOUNT_OK"},
		Title:             "Guerilla Fighter",
		Description:       "Mother of the Resistance.",
		TelephoneNumber:   "555-9175",
		HomePhone:         "5559175",
		Mobile:            "555-1776",
		HomePostalAddress: "11844 Hamlin St, Los Angeles, CA",
		EmployeeType:      "Resistance Fighter",
	}
}

func milesDyson() pingone.User {
	return pingone.User{
		Username:          "mdyson",
		Email:             "mdyson@cyberdyne.com",
		Name:              pingone.UserName{Given: "Miles", Family: "Dyson"},
		Lifecycle:         &pingone.UserLifecycle{Status: "ACCOUNT_OK"},
		Title:             "Director of Special Projects",
		Description:       "Lead Architect of the Neural-Net Processor; primary developer of the Skynet initiative.",
		TelephoneNumber:   "555-1995",
		HomePhone:         "555-1995",
		Mobile:            "555-1984",
		HomePostalAddress: "30065 Pacific Coast Highway, Malibu, CA",
		EmployeeNumber:    "00001",
		EmployeeType:      "Executive / Scientist",
	}
}
