package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"github.com/turretctl/turretd/internal/config"
	"github.com/turretctl/turretd/internal/debug"
	"github.com/turretctl/turretd/internal/hw/gpio"
	"github.com/turretctl/turretd/internal/link"
	"github.com/turretctl/turretd/internal/logic/motion"
	"github.com/turretctl/turretd/internal/web"
)

// cliOverrides holds command-line values that replace config settings.
// debugLevel -1 and empty listenAddr mean "use config"; the booleans can only
// switch a setting on.
type cliOverrides struct {
	debugLevel int
	mockGPIO   bool
	shootTest  bool
	listenAddr string
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	mock := flag.Bool("mock", false, "use mock GPIO instead of the Raspberry Pi registers")
	shootTest := flag.Bool("shoot-test", false, "fire once at startup and exit after power down")
	listen := flag.String("listen", "", "override UDP target listen address, e.g. :7777")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides := cliOverrides{debugLevel: *debugLevel, mockGPIO: *mock, shootTest: *shootTest, listenAddr: *listen}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	if err := run(ctx, cfg, *cfgPath, webPort.port()); err != nil {
		log.Fatalf("turretd: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, cfgPath string, webPort int) error {
	session := uuid.NewString()

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Info("Session %s", session)
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.PrintStruct("Draw axis", cfg.DrawAxis)
	debug.PrintStruct("Tilt axis", cfg.TiltAxis)
	debug.PrintStruct("Turret axis", cfg.TurretAxis)
	debug.Warn("Axis positions are not persisted: the rig must be at its home position now")

	// Web server first so the rest of startup is streamed to clients.
	var broadcaster *web.StatusBroadcaster
	if webPort > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Mapping GPIO and timer registers")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO, cfg.Hardware.PeripheralBase)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Opening target channel")
	mailbox := link.NewMailbox()
	receiver, err := link.Listen(cfg.Link.ListenAddr, mailbox)
	if err != nil {
		return err
	}
	go func() {
		if err := receiver.Run(ctx); err != nil {
			debug.Error(err)
		}
	}()

	debug.Step(3, "Initializing axes")
	ctrl, err := motion.NewController(gpioDriver, cfg, mailbox)
	if err != nil {
		return err
	}

	if broadcaster != nil {
		ctrl.OnStatus(broadcaster.BroadcastStatus)
		srv := web.NewServer(fmt.Sprintf(":%d", webPort), broadcaster, ctrl.Status, mailbox,
			web.CalibrationFromConfig(cfg), session)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	if cfg.Defaults.ShootTest {
		debug.Info("Shot test mode: firing once, exiting after power down")
	}
	debug.Section("Running")
	err = ctrl.Run(ctx)
	receiver.Close()

	received, dropped := receiver.Stats()
	debug.Summary("Shutdown")
	debug.Info("Packets: %d received, %d dropped", received, dropped)
	debug.Info("Shots: %d, tick overruns: %d", ctrl.Status().Shots, ctrl.Overruns())

	if errors.Is(err, motion.ErrShotTestComplete) {
		return nil
	}
	return err
}

// validateCLIOverrides checks override values before they replace config settings.
func validateCLIOverrides(o cliOverrides) error {
	if o.debugLevel < -1 || o.debugLevel > 4 {
		return fmt.Errorf("debug must be between 0 and 4, got %d", o.debugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Unset overrides leave cfg unchanged.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.debugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.debugLevel
	}
	if o.mockGPIO {
		cfg.Defaults.MockGPIO = true
	}
	if o.shootTest {
		cfg.Defaults.ShootTest = true
	}
	if o.listenAddr != "" {
		cfg.Link.ListenAddr = o.listenAddr
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
