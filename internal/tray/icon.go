package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"

	"github.com/voltpower/volt/internal/power"
)

const iconSize = 64

var (
	colorAC      = color.RGBA{0, 200, 80, 255}
	colorBattery = color.RGBA{240, 160, 0, 255}
	colorUnknown = color.RGBA{128, 128, 128, 255}
)

// Icon returns the tray icon for state in the format the platform's tray
// expects: ICO on Windows, PNG elsewhere.
func Icon(state power.State) []byte {
	p := iconPNG(state)
	if runtime.GOOS == "windows" {
		return wrapICO(p, iconSize)
	}
	return p
}

// iconPNG draws a battery glyph, filled on AC and half-empty on battery.
func iconPNG(state power.State) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))

	c := colorUnknown
	fill := 0.0
	switch state {
	case power.AC:
		c, fill = colorAC, 1.0
	case power.Battery:
		c, fill = colorBattery, 0.5
	}

	// Outline
	for y := 16; y < 48; y++ {
		for x := 6; x < 54; x++ {
			if y < 19 || y >= 45 || x < 9 || x >= 51 {
				img.Set(x, y, c)
			}
		}
	}
	// Terminal
	for y := 26; y < 38; y++ {
		for x := 54; x < 59; x++ {
			img.Set(x, y, c)
		}
	}
	// Charge level
	right := 12 + int(fill*36)
	for y := 22; y < 42; y++ {
		for x := 12; x < right; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// wrapICO wraps PNG data in a single-image ICO container.
func wrapICO(pngData []byte, size int) []byte {
	const headerLen = 6 + 16
	var buf bytes.Buffer
	buf.Grow(headerLen + len(pngData))

	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, struct {
		Reserved, Type, Count uint16
	}{0, 1, 1})
	// ICONDIRENTRY
	_ = binary.Write(&buf, binary.LittleEndian, struct {
		Width, Height, Colors, Reserved byte
		Planes, BitCount                uint16
		Size, Offset                    uint32
	}{dim, dim, 0, 0, 1, 32, uint32(len(pngData)), headerLen})

	buf.Write(pngData)
	return buf.Bytes()
}
