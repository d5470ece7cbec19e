// Command unitctl scans for units and previews write plans from the shell.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/KevinKickass/OpenUnitSync/internal/auth"
	"github.com/KevinKickass/OpenUnitSync/internal/config"
	"github.com/KevinKickass/OpenUnitSync/internal/discovery"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/plan"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/streaming"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
	"github.com/KevinKickass/OpenUnitSync/internal/units"
)

const usage = `usage: unitctl <command> [flags]

commands:
  scan           discover units on all interfaces
  plan           show the write plan of a profile file for a unit
  watch          follow the progress of a run over gRPC
  hash-password  print an argon2id hash for auth.admin_password_hash
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(ctx, os.Args[2:])
	case "plan":
		err = runPlan(os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "hash-password":
		err = runHashPassword()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "unitctl: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "config file (defaults apply when empty)")
	timeout := fs.Duration("timeout", 0, "overrides discovery.timeout")
	broadcasts := fs.StringSlice("broadcast", nil, "broadcast targets, name=ip or ip")
	asYAML := fs.Bool("yaml", false, "print YAML instead of a table")
	verbose := fs.BoolP("verbose", "v", false, "log to stderr")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *timeout > 0 {
		cfg.Discovery.Timeout = *timeout
	}
	if len(*broadcasts) > 0 {
		cfg.Discovery.Broadcasts = *broadcasts
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	scanner := discovery.NewScanner(discovery.Options{
		Port:           cfg.Discovery.Port,
		Timeout:        cfg.Discovery.Timeout,
		ReadBuffer:     cfg.Discovery.ReceiveBuffer,
		Broadcasts:     cfg.Discovery.Broadcasts,
		LegacyFallback: cfg.Discovery.LegacyFallback,
	}, logger)

	found := scanner.Scan(ctx)
	conflicts := units.CheckConflicts(found)

	if *asYAML {
		return yaml.NewEncoder(os.Stdout).Encode(map[string]any{
			"units":     found,
			"conflicts": conflicts,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IP\tCAN ID\tTYPE\tSERIAL\tMODE\tFIRMWARE\tINTERFACE")
	for _, u := range found {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			u.IPAddress, u.CanID, u.UnitType, u.SerialNumber, u.Mode, u.Firmware, u.Interface)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d unit(s) found\n", len(found))
	for _, c := range conflicts {
		fmt.Printf("conflict %s: %s\n", c.Code, c.Error())
	}
	return nil
}

type planStep struct {
	Kind     string `yaml:"kind"`
	Category string `yaml:"category"`
	Label    string `yaml:"label,omitempty"`
	Weight   int    `yaml:"weight"`
	Items    int    `yaml:"items"`
}

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	profilePath := fs.StringP("profile", "p", "", "profile file (.json, .yaml)")
	unitKey := fs.StringP("unit", "u", "", "target unit as ip/can-id (defaults to the profile's identity)")
	categories := fs.StringSlice("category", nil, "categories to synchronize after the profile")
	fs.Parse(args)

	if *profilePath == "" {
		return fmt.Errorf("--profile is required")
	}

	loader, err := units.NewProfileLoader(nil)
	if err != nil {
		return err
	}
	profile, err := loader.Load(*profilePath)
	if err != nil {
		return err
	}

	target := types.NetworkUnit{IPAddress: profile.IPAddress, CanID: profile.CanID, UnitType: profile.UnitType}
	if *unitKey != "" {
		ip, canID, ok := strings.Cut(*unitKey, "/")
		if !ok {
			return fmt.Errorf("--unit must be ip/can-id, got %q", *unitKey)
		}
		target.IPAddress, target.CanID = ip, canID
	}

	p, err := plan.Build(profile, target)
	if err != nil {
		return err
	}

	selected := make([]types.ConfigCategory, 0, len(*categories))
	for _, name := range *categories {
		c, err := types.ParseConfigCategory(name)
		if err != nil {
			return err
		}
		selected = append(selected, c)
	}

	steps := append([]plan.Step(nil), p.Steps...)
	steps = append(steps, plan.CategorySteps(profile, selected, 0)...)

	out := make([]planStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, planStep{
			Kind:     s.Kind.String(),
			Category: s.CategoryName(),
			Label:    s.Label,
			Weight:   s.Weight,
			Items:    stepItems(s),
		})
	}

	return yaml.NewEncoder(os.Stdout).Encode(map[string]any{
		"unit":           target.Label(),
		"profile_weight": p.Weight(),
		"steps":          out,
	})
}

func stepItems(s plan.Step) int {
	switch payload := s.Payload.(type) {
	case plan.IOPayload:
		return payload.Count()
	case []types.RS485Channel:
		return len(payload)
	case []types.CategoryRecord:
		return len(payload)
	case nil:
		return 0
	default:
		return 1
	}
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fs.String("grpc", "localhost:50051", "gRPC address of the server")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: unitctl watch [--grpc addr] <run-id>")
	}
	runID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect %s: %w", *addr, err)
	}
	defer conn.Close()

	return streaming.WatchProgress(ctx, conn, runID, func(p types.Progress) {
		line := fmt.Sprintf("%s %-9s %3d%% %s", p.Timestamp.Format(time.TimeOnly), p.State, p.Percent, p.Operation)
		if p.Summary != nil {
			line += fmt.Sprintf(" (ok %d, failed %d)", p.Summary.Succeeded, p.Summary.Failed)
		}
		fmt.Println(line)
	})
}

func runHashPassword() error {
	fmt.Fprint(os.Stderr, "password: ")
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.NewPasswordHasher().HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
