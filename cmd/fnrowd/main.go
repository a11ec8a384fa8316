package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"

	"github.com/phinze/fnrow/internal/config"
	"github.com/phinze/fnrow/internal/device"
	"github.com/phinze/fnrow/internal/event"
	"github.com/phinze/fnrow/internal/media"
	"github.com/phinze/fnrow/internal/session"
)

const uinputPath = "/dev/uinput"

func main() {
	parser := argparse.NewParser("fnrowd", "Drives a touch-sensitive function row as a row of virtual keys")
	userPath := parser.String("c", "config", &argparse.Options{
		Default: config.UserPath,
		Help:    "User configuration file",
	})
	basePath := parser.String("b", "base-config", &argparse.Options{
		Default: config.BasePath,
		Help:    "Base configuration file, overridden by --config",
	})
	debug := parser.Flag("d", "debug", &argparse.Options{Help: "Log every event"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(*basePath, *userPath); err != nil {
		log.WithError(err).Error("fnrowd stopped")
		os.Exit(1)
	}
	log.Info("Exiting...")
}

// run acquires every device, runs the controller and releases the devices
// in reverse order. The controller's Close runs first so keys are released
// and the panel blanked before anything is closed.
func run(basePath, userPath string) error {
	load := func() (*config.Config, error) {
		return config.Load(basePath, userPath)
	}
	cfg, err := load()
	if err != nil {
		return err
	}

	found, err := device.Discover(device.Hints{
		Touch:     cfg.TouchDevice,
		Display:   cfg.DisplayDevice,
		Backlight: cfg.BacklightDevice,
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"touch":     found.Touch,
		"display":   found.Display,
		"backlight": found.Backlight,
		"keyboards": len(found.Keyboards),
	}).Info("Found devices")

	card, err := device.OpenCard(found.Display)
	if err != nil {
		return err
	}
	var backlight *device.Backlight
	if found.Backlight != "" {
		if backlight, err = device.OpenBacklight(found.Backlight); err != nil {
			log.WithError(err).Warn("No backlight control, dimming in software only")
			backlight = nil
		}
	}
	panel := device.NewPanel(card, backlight)
	defer panel.Close()
	log.Infof("Panel is %dx%d", panel.Bounds().Dx(), panel.Bounds().Dy())

	vkbd, err := device.NewVirtualKeyboard(uinputPath)
	if err != nil {
		return err
	}
	defer vkbd.Close()

	touchIn, err := device.OpenTouch(found.Touch, panel.Bounds())
	if err != nil {
		return err
	}
	defer touchIn.Close()

	var keyboards *device.KeyboardReader
	if len(found.Keyboards) > 0 {
		if keyboards, err = device.OpenKeyboards(found.Keyboards); err != nil {
			log.WithError(err).Warn("Fn key and keyboard wake disabled")
			keyboards = nil
		} else {
			defer keyboards.Close()
		}
	}

	opts := session.Options{Load: load}
	if b := device.FindBattery(); b != nil {
		opts.Battery = b
	}
	ctrl, err := session.New(cfg, panel, vkbd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.WithError(err).Warn("Shutdown incomplete")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reload := make(chan struct{}, 1)
	requestReload := func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan struct{}
	if w, err := config.NewWatcher(basePath, userPath); err != nil {
		log.WithError(err).Warn("Config changes need SIGHUP")
	} else {
		defer w.Close()
		go w.Run(ctx)
		changes = w.Changes()
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info("Received SIGHUP")
				requestReload()
			case <-changes:
				requestReload()
			}
		}
	}()

	contacts := make(chan event.Contact, 64)
	keys := make(chan event.Key, 64)
	errs := make(chan error, 4)
	go touchIn.Run(ctx, contacts, errs)
	if keyboards != nil {
		go keyboards.Run(ctx, keys, errs)
	}

	mw := media.NewWatcher()
	go mw.Run(ctx)

	log.Info("fnrowd running")
	err = ctrl.Run(ctx, session.Sources{
		Contacts: contacts,
		Keys:     keys,
		Reload:   reload,
		Media:    mw.Updates(),
		Errors:   errs,
	})
	if errors.Is(err, device.ErrUnavailable) {
		return fmt.Errorf("lost device: %w", err)
	}
	return err
}
