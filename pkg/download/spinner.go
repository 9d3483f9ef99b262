package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Spinner runs an action while displaying a rotating text indicator, and lets
// the action update the title text with live progress.
type Spinner struct {
	title  string
	action func(chan<- string)
}

// NewSpinner creates a new Spinner instance.
func NewSpinner() *Spinner {
	return &Spinner{}
}

// Title sets the initial title text for the spinner.
func (s *Spinner) Title(title string) *Spinner {
	s.title = title
	return s
}

// Action sets the function to be executed. The function receives a channel
// it can use to send real-time title updates.
func (s *Spinner) Action(action func(chan<- string)) *Spinner {
	s.action = action
	return s
}

const (
	eraseToEOL = "\033[0K"
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
)

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Run executes the action function and manages the spinner animation and
// title updates.
func (s *Spinner) Run() error {
	if s.action == nil {
		return errors.New("spinner action is not set")
	}

	const interval = 200 * time.Millisecond

	var wg sync.WaitGroup
	stopChan := make(chan struct{})
	// Buffered so the action never blocks posting a title update.
	titleUpdateChan := make(chan string, 16)
	currentTitle := s.title

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		spinCharsIdx := 0

		// Hide the cursor while the spinner is running.
		fmt.Print(hideCursor)
		defer fmt.Print(showCursor)

		for {
			select {
			case <-ticker.C:
				// Terminal width recalculated at every tick, since it may
				// change mid-animation.
				terminalWidth, _, err := term.GetSize(0)
				if err != nil {
					terminalWidth = 80
				}
				spinRune := spinRunes[spinCharsIdx%len(spinRunes)]
				fmt.Printf("\r%c %s%s", spinRune, truncateToWidth(currentTitle, terminalWidth-3), eraseToEOL)
				spinCharsIdx++

			case newTitle := <-titleUpdateChan:
				currentTitle = newTitle

			case <-stopChan:
				fmt.Printf("\r%s", eraseToEOL)
				return
			}
		}
	}()

	s.action(titleUpdateChan)

	close(stopChan)
	// Do NOT close titleUpdateChan: the animation goroutine may still read
	// from it before it fully shuts down.
	wg.Wait()
	return nil
}

// truncateToWidth truncates s to at most width runes, appending "…" when
// something was cut.
func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
