package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyPane3    = "3"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeyNext     = "n" // run the next phase
	KeyRetry    = "r" // retry the selected task
	KeySkip     = "x" // skip the selected task
	KeyReset    = "R"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(interactive bool) string {
	if !interactive {
		return StyleHelp.Render("Tab: cycle focus | 1/2/3: jump to pane | j/k: select/scroll | q: quit")
	}
	return StyleHelp.Render("Tab: cycle focus | 1/2/3: jump to pane | j/k: select/scroll | n: next phase | r: retry | x: skip | R: reset | q: quit")
}
