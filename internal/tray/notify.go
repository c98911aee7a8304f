package tray

import "github.com/ncruces/zenity"

// DesktopNotifier shows notifications with zenity.
type DesktopNotifier struct{}

// Notify implements Notifier.
func (DesktopNotifier) Notify(title, text string) error {
	return zenity.Notify(text, zenity.Title(title), zenity.ErrorIcon)
}

// ErrorDialog shows a modal error box, for failures before the tray is up.
func ErrorDialog(title, text string) error {
	return zenity.Error(text, zenity.Title(title))
}
