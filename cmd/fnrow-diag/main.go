package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/colornames"

	"github.com/phinze/fnrow/internal/device"
	"github.com/phinze/fnrow/internal/event"
	"github.com/phinze/fnrow/internal/render"
)

func main() {
	parser := argparse.NewParser("fnrow-diag", "Lists function row devices and paints a test pattern")
	watch := parser.Flag("t", "touch", &argparse.Options{Help: "Print touch contacts until interrupted"})
	brightness := parser.Int("B", "brightness", &argparse.Options{Default: 50, Help: "Backlight percent"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	found, err := device.Discover(device.Hints{})
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}
	fmt.Printf("\nFound devices:\n")
	fmt.Printf("  Touch: %s\n", found.Touch)
	fmt.Printf("  Display: %s\n", found.Display)
	fmt.Printf("  Backlight: %s\n", found.Backlight)
	for _, k := range found.Keyboards {
		fmt.Printf("  Keyboard: %s\n", k)
	}
	if b := device.FindBattery(); b != nil {
		if pct, charging, ok := b.Level(); ok {
			fmt.Printf("  Battery: %d%% (charging: %v)\n", pct, charging)
		}
	}
	fmt.Println()

	card, err := device.OpenCard(found.Display)
	if err != nil {
		log.Fatalf("Failed to open display: %v", err)
	}
	var backlight *device.Backlight
	if found.Backlight != "" {
		if backlight, err = device.OpenBacklight(found.Backlight); err != nil {
			log.Warnf("No backlight: %v", err)
			backlight = nil
		}
	}
	panel := device.NewPanel(card, backlight)
	defer func() {
		log.Println("Closing panel...")
		panel.Close()
	}()

	bounds := panel.Bounds()
	fmt.Printf("Panel: %dx%d\n", bounds.Dx(), bounds.Dy())

	if err := panel.SetBrightness(*brightness); err != nil {
		log.Warnf("Failed to set backlight: %v", err)
	}
	img := createGradient(bounds, colornames.Blueviolet, colornames.Orangered)
	err = panel.Present(&render.Frame{Pix: img, Damage: []image.Rectangle{bounds}, Brightness: render.MaxBrightness})
	if err != nil {
		log.Fatalf("Failed to draw test pattern: %v", err)
	}
	log.Println("Test pattern drawn")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !*watch {
		return
	}
	touchIn, err := device.OpenTouch(found.Touch, bounds)
	if err != nil {
		log.Errorf("Failed to open touch input: %v", err)
		return
	}
	defer touchIn.Close()

	contacts := make(chan event.Contact, 16)
	errs := make(chan error, 1)
	go touchIn.Run(ctx, contacts, errs)

	log.Println("Ready! Touch the panel, Ctrl+C to exit")
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Errorf("Touch input failed: %v", err)
			return
		case c := <-contacts:
			log.Printf("Contact %d %s at (%d, %d)", c.ID, c.Phase, c.Point.X, c.Point.Y)
		}
	}
}

func createGradient(rect image.Rectangle, start, end color.RGBA) *image.RGBA {
	img := image.NewRGBA(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			t := float64(x-rect.Min.X) / float64(rect.Dx())
			img.Set(x, y, color.RGBA{
				R: uint8(float64(start.R)*(1-t) + float64(end.R)*t),
				G: uint8(float64(start.G)*(1-t) + float64(end.G)*t),
				B: uint8(float64(start.B)*(1-t) + float64(end.B)*t),
				A: 255,
			})
		}
	}
	return img
}
