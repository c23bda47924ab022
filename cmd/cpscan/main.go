package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cpscan/engine/internal/config"
	"github.com/cpscan/engine/internal/logging"
	"github.com/cpscan/engine/internal/scan"
	"github.com/cpscan/engine/internal/version"
)

var Version = version.Version

// applyFlagOverrides layers CLI flags onto a loaded Config, matching the
// override precedence: explicit flags beat .cpscan.kdl, which beats
// DefaultScanSpec().
func applyFlagOverrides(c *cli.Context, cfg *config.Config) error {
	if rootFlag := c.String("root"); rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}
	if cp := c.StringSlice("classpath"); len(cp) > 0 {
		cfg.Spec.ClasspathOverride = cp
	}
	if inc := c.StringSlice("include-packages"); len(inc) > 0 {
		cfg.Spec.IncludePackages = inc
	}
	if exc := c.StringSlice("exclude-packages"); len(exc) > 0 {
		cfg.Spec.ExcludePackages = append(cfg.Spec.ExcludePackages, exc...)
	}
	if c.IsSet("scan-modules") {
		cfg.Spec.ScanModules = c.Bool("scan-modules")
	}
	if c.IsSet("extend-upwards") {
		cfg.Spec.ExtendScanningUpwardsToExternalClasses = c.Bool("extend-upwards")
	}
	if c.IsSet("perform-scan") {
		cfg.Spec.PerformScan = c.Bool("perform-scan")
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.Performance.ParallelWorkers = workers
	}
	return nil
}

func scanCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("root"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlagOverrides(c, cfg); err != nil {
		return err
	}

	log := logging.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng := scan.New(scan.NoModuleDiscoverer{RawPaths: cfg.Spec.ClasspathOverride}, log)
	res, err := eng.Scan(ctx, cfg.Spec)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(os.Stdout, "classpath order (%d elements):\n", len(res.FinalOrder))
	for i, p := range res.FinalOrder {
		fmt.Fprintf(os.Stdout, "  %d. %s\n", i+1, p)
	}
	if res.Graph != nil {
		fmt.Fprintf(os.Stdout, "\nclasses: %d  packages: %d  modules: %d\n",
			len(res.Graph.ClassesByName), len(res.Graph.PackagesByName), len(res.Graph.ModulesByName))
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:                   "cpscan",
		Usage:                  "Classpath scan engine: discover, parse, and link a Java classpath's type graph",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root to load .cpscan.kdl from",
			},
			&cli.StringSliceFlag{
				Name:  "classpath",
				Usage: "Override classpath discovery with explicit raw paths",
			},
			&cli.StringSliceFlag{
				Name:  "include-packages",
				Usage: "Only scan classfiles under these packages",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-packages",
				Usage: "Exclude classfiles under these packages",
			},
			&cli.BoolFlag{
				Name:  "scan-modules",
				Usage: "Include JPMS modules in the scan",
			},
			&cli.BoolFlag{
				Name:  "extend-upwards",
				Usage: "Follow superclass/interface/annotation references to classfiles outside the package filter",
			},
			&cli.BoolFlag{
				Name:  "perform-scan",
				Usage: "Parse classfiles and build the type graph (disable for order-only runs)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Stored as the config's parallel worker count (0 = auto-detect); the scan does not read it, each work queue phase sizes itself from its unit count and the CPU count",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the scan result as JSON",
			},
		},
		Action: scanCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cpscan:", err)
		os.Exit(1)
	}
}
