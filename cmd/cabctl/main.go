// Command cabctl assembles a cab from a manifest and serves its admin surface,
// and drives a running cab over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/danmuck/opencab/internal/admin"
	"github.com/danmuck/opencab/internal/cab"
	"github.com/danmuck/opencab/internal/config"
	"github.com/danmuck/opencab/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultAddr = "127.0.0.1:7300"
	envToken    = "OPENCAB_ADMIN_TOKEN"
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"init":      {"write a manifest template", runInit},
	"validate":  {"validate a manifest", runValidate},
	"serve":     {"assemble a cab and serve its admin surface", runServe},
	"directory": {"print the component directory", runDirectory},
	"discover":  {"discover endpoints by pattern", runDiscover},
	"call":      {"call a contract method on one endpoint", runCall},
	"broadcast": {"broadcast an event action", runBroadcast},
	"state":     {"print a provider's session state", runState},
	"action":    {"run a provider action", runAction},
	"view":      {"print a consumer view", runView},
}

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "cabctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd.run(ctx, args[1:], out)
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: cabctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

func runInit(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	output := fs.String("output", "cmd/cabctl/cab.toml", "manifest path (.toml, .yaml, .yml)")
	force := fs.Bool("force", false, "overwrite an existing manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote manifest template to %s\n", *output)
	return nil
}

func runValidate(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	path := fs.String("manifest", "cmd/cabctl/cab.toml", "manifest path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := config.LoadManifest(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "validated manifest %s: %d providers, %d consumers\n", m.Name, len(m.Providers), len(m.Consumers))
	return nil
}

func runServe(ctx context.Context, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "cabctl config path")
	addr := fs.String("addr", "", "listen address, overrides config")
	manifest := fs.String("manifest", "", "manifest path, overrides config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultServeConfig()
	if *configPath != "" {
		loaded, err := loadServeConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *manifest != "" {
		cfg.Manifest = *manifest
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	m, err := config.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	c, err := cab.Assemble(ctx, m)
	if err != nil {
		return err
	}
	log.Info().Msgf("cabctl.serve manifest=%s addr=%s", cfg.Manifest, cfg.Addr)
	srv := admin.New(cfg.ID, cfg.Addr, c, admin.Options{
		CorsOrigins: cfg.CorsOrigins,
		RPS:         cfg.RPS,
		Burst:       cfg.Burst,
		Token:       cfg.Token,
	})
	return srv.Serve(ctx)
}

func runDirectory(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir, err := opts.client().Directory(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, dir)
}

func runDiscover(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("discover")
	kind := fs.String("kind", "provider", "endpoint kind: provider|receiver")
	var patterns stringList
	fs.Var(&patterns, "pattern", "endpoint pattern, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(patterns) == 0 {
		return fmt.Errorf("%w: discover needs -pattern", errUsage)
	}
	found, err := opts.client().Discover(ctx, *kind, patterns...)
	if err != nil {
		return err
	}
	return printJSON(out, found)
}

func runCall(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("call")
	endpoint := fs.String("endpoint", "", "full endpoint name")
	method := fs.String("method", "", "contract method")
	ver := fs.String("version", "", "requested version, empty for versionless")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := opts.client().Call(ctx, admin.CallRequest{
		Endpoint: *endpoint,
		Method:   *method,
		Version:  *ver,
	})
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func runBroadcast(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("broadcast")
	action := fs.String("action", "", "event action")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := opts.client().Broadcast(ctx, *action)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "broadcast %s event=%s\n", *action, id)
	return nil
}

func runState(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("state")
	identity := fs.String("provider", "", "provider identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	state, err := opts.client().ProviderState(ctx, *identity)
	if err != nil {
		return err
	}
	return printJSON(out, state)
}

func runAction(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("action")
	identity := fs.String("provider", "", "provider identity")
	name := fs.String("name", "", "action: "+strings.Join(admin.ProviderActions(), "|"))
	var req admin.ActionRequest
	fs.StringVar(&req.Username, "username", "", "username for login")
	fs.StringVar(&req.Duty, "duty", "", "duty status for duty: d|on|off")
	fs.StringVar(&req.TokenMode, "token-mode", "", "token mode for token: jwt|static")
	fs.StringVar(&req.StaticToken, "static-token", "", "static token for token")
	fs.StringVar(&req.Action, "event", "", "event action for broadcast")
	if err := fs.Parse(args); err != nil {
		return err
	}
	state, err := opts.client().Action(ctx, *identity, *name, req)
	if err != nil {
		return err
	}
	return printJSON(out, state)
}

func runView(ctx context.Context, args []string, out io.Writer) error {
	fs, opts := clientFlags("view")
	identity := fs.String("consumer", "", "consumer identity")
	name := fs.String("name", "hos", "view: hos|credentials|drivers|vehicles|events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := opts.client().ConsumerView(ctx, *identity, *name)
	if err != nil {
		return err
	}
	return printJSON(out, raw)
}

type clientOpts struct {
	addr  string
	token string
}

func (o *clientOpts) client() *admin.Client {
	return admin.NewClient(o.addr).WithToken(o.token)
}

func clientFlags(name string) (*flag.FlagSet, *clientOpts) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := &clientOpts{}
	fs.StringVar(&opts.addr, "addr", defaultAddr, "admin address")
	fs.StringVar(&opts.token, "token", os.Getenv(envToken), "admin bearer token (default $"+envToken+")")
	return fs, opts
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
