package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xfeldman/arcbox/internal/archive"
	"github.com/xfeldman/arcbox/internal/catalog"
	"github.com/xfeldman/arcbox/internal/config"
	"github.com/xfeldman/arcbox/internal/registry"
	"github.com/xfeldman/arcbox/internal/report"
	"github.com/xfeldman/arcbox/internal/version"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	v       *viper.Viper
	cfgFile string
	noWait  bool

	cfg *config.Config
	log *zap.Logger
	rep report.Reporter
	db  *catalog.DB
	reg *registry.Registry[*archive.Container]
}

// run executes one arcbox invocation and releases whatever it opened.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{in: in, out: out, errOut: errOut, v: viper.New()}
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arcbox",
		Short:         "Pack logical files into named ZIP containers",
		Version:       version.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ~/.arcbox/config.yaml)")
	flags.BoolVar(&a.noWait, "no-wait", false, "fail instead of waiting when a container is locked")
	flags.String("work-dir", "", "working directory for containers")
	flags.String("compression", "", "entry compression: store, deflate or zstd")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = a.v.BindPFlag("work_dir", flags.Lookup("work-dir"))
	_ = a.v.BindPFlag("compression", flags.Lookup("compression"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		a.newCmd(), a.loadCmd(), a.lsCmd(), a.closeCmd(),
		a.membersCmd(), a.writeCmd(), a.appendCmd(), a.addCmd(), a.updateCmd(),
		a.catCmd(), a.extractCmd(), a.rmCmd(),
		a.watchCmd(), a.logCmd(), a.gcCmd(), a.configCmd(), versionCmd(),
	)
	return root
}

// loadConfig layers defaults, the config file, ARCBOX_* env vars and flags.
func (a *app) loadConfig() error {
	v := a.v
	defaults := config.DefaultConfig()
	v.SetDefault("work_dir", defaults.WorkDir)
	v.SetDefault("extension", defaults.Extension)
	v.SetDefault("compression", defaults.Compression)
	v.SetDefault("compression_level", defaults.CompressionLevel)
	v.SetDefault("encoding", defaults.Encoding)
	v.SetDefault("file_mode", defaults.FileMode)
	v.SetDefault("catalog_path", defaults.CatalogPath)
	v.SetDefault("lock_dir", defaults.LockDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("stale_temp_age", defaults.StaleTempAge)
	v.SetDefault("event_retention", defaults.EventRetention)

	v.SetEnvPrefix("arcbox")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// A missing file leaves the defaults in place so that "config init"
	// can create it.
	path := a.cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return fmt.Errorf("read config: %w", err)
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	return nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

func (a *app) newLogger() (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if a.cfg.LogLevel != "" {
		l, err := zapcore.ParseLevel(a.cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		level = l
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = zapcore.OmitKey
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(a.errOut), level)
	return zap.New(core).Named("arcbox"), nil
}

// open brings up logging, the catalog and the registry, then registers
// every container the catalog remembers.
func (a *app) open() error {
	if a.reg != nil {
		return nil
	}
	if err := a.cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}

	log, err := a.newLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.log = log

	db, err := catalog.Open(a.cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	a.db = db
	a.rep = db.Observer(report.NewZap(log))

	reg, err := registry.New[*archive.Container](a.cfg.Extension, a.openContainer,
		registry.WithReporter(a.rep))
	if err != nil {
		return err
	}
	a.reg = reg

	saved, err := db.ListContainers()
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, sc := range saved {
		if _, err := reg.LoadWithExtension(sc.Name, sc.Dir, sc.Ext); err != nil {
			a.log.Warn("catalog: container unavailable, skipping",
				zap.String("name", sc.Name), zap.Error(err))
		}
	}
	return nil
}

// openContainer is the registry factory.
func (a *app) openContainer(name, dir, ext string) (*archive.Container, error) {
	comp, err := archive.ParseCompression(a.cfg.Compression)
	if err != nil {
		return nil, err
	}
	perm, err := a.cfg.Perm()
	if err != nil {
		return nil, err
	}
	return archive.New(name, dir, ext,
		archive.WithReporter(a.rep),
		archive.WithCompression(comp),
		archive.WithLevel(a.cfg.CompressionLevel),
		archive.WithEncoding(a.cfg.Encoding),
		archive.WithPerm(perm),
	)
}

func (a *app) close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	a.reg = nil
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the arcbox version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version())
			return nil
		},
	}
}
