package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"farmacia/client/internal/notify"
)

// banner renders the live notification at the top of a window.
type banner struct {
	box   *fyne.Container
	bg    *canvas.Rectangle
	text  *widget.Label
	close *widget.Button
}

func newBanner(onClose func()) *banner {
	b := &banner{
		bg:   canvas.NewRectangle(color.Transparent),
		text: widget.NewLabel(""),
	}
	b.bg.CornerRadius = 6
	b.text.Wrapping = fyne.TextWrapWord
	b.close = widget.NewButtonWithIcon("", theme.CancelIcon(), onClose)
	b.close.Importance = widget.LowImportance
	content := container.NewBorder(nil, nil, nil, b.close, b.text)
	b.box = container.NewStack(b.bg, container.NewPadded(content))
	b.box.Hide()
	return b
}

func (b *banner) object() fyne.CanvasObject {
	return b.box
}

// render must run on the Fyne goroutine.
func (b *banner) render(n notify.Notification) {
	if !n.Visible || n.Message == "" {
		b.box.Hide()
		return
	}
	b.bg.FillColor = bannerColor(n.Kind)
	b.bg.Refresh()
	b.text.SetText(n.Message)
	b.box.Show()
}

func bannerColor(kind notify.Kind) color.Color {
	var base color.Color
	switch kind {
	case notify.KindSuccess:
		base = theme.Color(theme.ColorNameSuccess)
	case notify.KindError:
		base = theme.Color(theme.ColorNameError)
	default:
		base = theme.Color(theme.ColorNameWarning)
	}
	c := color.NRGBAModel.Convert(base).(color.NRGBA)
	c.A = 56
	return c
}
