package scenefs

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/scene"
)

// newScreenFile renders the scene to PNG, lazily on first read and
// cached per fid.
func newScreenFile(s *Surface) *fsys.SnapshotFile {
	return &fsys.SnapshotFile{
		Build: func(fid *fsys.Fid) ([]byte, error) {
			return s.RenderPNG()
		},
	}
}

func parseColor(spec string, fallback color.RGBA) color.RGBA {
	if len(spec) != 7 || spec[0] != '#' {
		return fallback
	}
	n, err := strconv.ParseUint(spec[1:], 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}
}

func propInt(props map[string]interface{}, name string, fallback int) int {
	switch v := props[name].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func propString(props map[string]interface{}, name, fallback string) string {
	if s, ok := props[name].(string); ok {
		return s
	}
	return fallback
}

var defaultItemColor = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// RenderPNG rasterizes the registered items over the background.
func (s *Surface) RenderPNG() ([]byte, error) {
	settings := s.scene.Settings()
	w, h := settings.Width, settings.Height
	if w <= 0 || h <= 0 {
		w, h = 800, 600
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := parseColor(settings.Background, color.RGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff})
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	for _, item := range s.scene.Items() {
		drawItem(img, item)
	}

	var b bytes.Buffer
	if err := png.Encode(&b, img); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func drawItem(img *image.RGBA, item *scene.Item) {
	c := parseColor(propString(item.Props, "color", ""), defaultItemColor)
	switch item.Kind {
	case "Rect":
		x := propInt(item.Props, "x", 0)
		y := propInt(item.Props, "y", 0)
		w := propInt(item.Props, "width", 10)
		h := propInt(item.Props, "height", 10)
		draw.Draw(img, image.Rect(x, y, x+w, y+h), &image.Uniform{C: c}, image.Point{}, draw.Src)
	case "Ellipse":
		drawEllipse(img, item.Props, c)
	case "Line":
		drawLine(img,
			propInt(item.Props, "x1", 0), propInt(item.Props, "y1", 0),
			propInt(item.Props, "x2", 0), propInt(item.Props, "y2", 0), c)
	case "Text":
		d := font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{C: c},
			Face: basicfont.Face7x13,
			Dot: fixed.P(
				propInt(item.Props, "x", 0),
				propInt(item.Props, "y", 0)+basicfont.Face7x13.Ascent),
		}
		d.DrawString(propString(item.Props, "text", ""))
	}
}

func drawEllipse(img *image.RGBA, props map[string]interface{}, c color.RGBA) {
	x := propInt(props, "x", 0)
	y := propInt(props, "y", 0)
	w := propInt(props, "width", 10)
	h := propInt(props, "height", 10)
	if w <= 0 || h <= 0 {
		return
	}
	cx, cy := float64(x)+float64(w)/2, float64(y)+float64(h)/2
	rx, ry := float64(w)/2, float64(h)/2
	for py := y; py < y+h; py++ {
		for px := x; px < x+w; px++ {
			dx := (float64(px) + 0.5 - cx) / rx
			dy := (float64(py) + 0.5 - cy) / ry
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(px, py, c)
			}
		}
	}
}

func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	steps := int(math.Max(math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))))
	if steps == 0 {
		img.SetRGBA(x1, y1, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		px := int(math.Round(float64(x1) + t*float64(x2-x1)))
		py := int(math.Round(float64(y1) + t*float64(y2-y1)))
		img.SetRGBA(px, py, c)
	}
}
