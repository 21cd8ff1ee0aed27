package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// clinicTheme is a light palette with the pharmacy's teal accent.
type clinicTheme struct {
	base fyne.Theme
}

func newClinicTheme() fyne.Theme {
	return &clinicTheme{base: theme.LightTheme()}
}

func (t *clinicTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return color.NRGBA{R: 243, G: 247, B: 246, A: 255}
	case theme.ColorNameButton, theme.ColorNamePrimary:
		return color.NRGBA{R: 13, G: 148, B: 136, A: 255}
	case theme.ColorNameForeground:
		return color.NRGBA{R: 17, G: 24, B: 39, A: 255}
	case theme.ColorNameInputBackground:
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	case theme.ColorNameSuccess:
		return color.NRGBA{R: 22, G: 163, B: 74, A: 255}
	case theme.ColorNameError:
		return color.NRGBA{R: 220, G: 38, B: 38, A: 255}
	case theme.ColorNameWarning:
		return color.NRGBA{R: 217, G: 119, B: 6, A: 255}
	default:
		return t.base.Color(name, variant)
	}
}

func (t *clinicTheme) Font(style fyne.TextStyle) fyne.Resource {
	return t.base.Font(style)
}

func (t *clinicTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return t.base.Icon(name)
}

func (t *clinicTheme) Size(name fyne.ThemeSizeName) float32 {
	return t.base.Size(name)
}
