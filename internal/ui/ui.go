package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/player"
	"github.com/desertthunder/deworm/internal/spotify"
	"github.com/desertthunder/deworm/internal/tasks"
)

// PlaybackController is the slice of the playback session controller the TUI
// drives. [player.Controller] satisfies it.
type PlaybackController interface {
	Connect(ctx context.Context) error
	State() player.State
	Play(ctx context.Context, uri string) error
	TogglePlayPause(ctx context.Context) error
	ToggleMute(ctx context.Context) error
	IsPlaying() bool
	Muted() bool
}

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SearchView ViewState = iota
	ResultListView
	ConfirmView
	PlayingView
)

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	gateway   spotify.Gateway
	suggester tasks.Suggester
	player    PlaybackController
	token     func() string
	width     int
	height    int
	input     textinput.Model
	results   list.Model
	earworm   *models.Track
	cure      *models.Track
	playing   bool
	muted     bool
	err       error
	help      help.Model
	keys      keyMap
}

type searchResultsMsg struct {
	tracks []models.Track
	err    error
}

type cureFoundMsg struct {
	track *models.Track
	err   error
}

type playbackStartedMsg struct {
	err error
}

type playbackToggledMsg struct {
	playing bool
	err     error
}

type muteToggledMsg struct {
	muted bool
	err   error
}

// NewModel creates a new TUI model with the provided dependencies. token must
// return a currently valid access token on every call.
func NewModel(ctx context.Context, gateway spotify.Gateway, suggester tasks.Suggester, controller PlaybackController, token func() string) *Model {
	input := textinput.New()
	input.Placeholder = "What song is stuck in your head?"
	input.Focus()
	input.CharLimit = 120

	return &Model{
		ctx:       ctx,
		view:      SearchView,
		gateway:   gateway,
		suggester: suggester,
		player:    controller,
		token:     token,
		input:     input,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init focuses the search input.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.results.Width() == 0 {
			m.results.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		case ResultListView:
			return m.handleResultKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case PlayingView:
			return m.handlePlayingKeys(msg)
		}

	case searchResultsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(msg.tracks))
		for i, track := range msg.tracks {
			items[i] = trackItem{track: track}
		}
		m.results = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.results.Title = "Which one is the earworm?"
		m.results.SetSize(m.width-4, m.height-8)
		m.view = ResultListView
		return m, nil

	case cureFoundMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = ResultListView
			return m, nil
		}
		m.cure = msg.track
		return m, m.play()

	case playbackStartedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = ResultListView
			return m, nil
		}
		m.err = nil
		m.playing = true
		m.view = PlayingView
		return m, nil

	case playbackToggledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.playing = msg.playing
		return m, nil

	case muteToggledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.muted = msg.muted
		return m, nil
	}

	return m.updateInputs(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	case ResultListView:
		return m.renderResults()
	case ConfirmView:
		return m.renderConfirm()
	case PlayingView:
		return m.renderPlaying()
	default:
		return ""
	}
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		query := m.input.Value()
		if query != "" {
			return m, m.search(query)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = SearchView
		m.err = nil
		return m, nil
	case "enter":
		if selected := m.results.SelectedItem(); selected != nil {
			if item, ok := selected.(trackItem); ok {
				track := item.track
				m.earworm = &track
				m.view = ConfirmView
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "esc":
		m.view = ResultListView
		return m, nil
	case "y", "enter":
		return m, m.findCure()
	}
	return m, nil
}

func (m *Model) handlePlayingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		return m, m.togglePlayback()
	case "m":
		return m, m.toggleMute()
	case "s":
		m.view = SearchView
		m.input.SetValue("")
		m.earworm = nil
		m.cure = nil
		m.err = nil
		return m, textinput.Blink
	}
	return m, nil
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case SearchView:
		m.input, cmd = m.input.Update(msg)
	case ResultListView:
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m *Model) search(query string) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.gateway.SearchTracks(m.ctx, m.token(), query, 10)
		return searchResultsMsg{tracks: tracks, err: err}
	}
}

func (m *Model) findCure() tea.Cmd {
	return func() tea.Msg {
		track, err := m.suggester.Suggest(m.ctx, m.token(), m.earworm.ID)
		return cureFoundMsg{track: track, err: err}
	}
}

// play starts the cure through the session controller, so the device is
// verified upstream before every play and device loss is handled there
// rather than surfacing as a raw REST error.
func (m *Model) play() tea.Cmd {
	return func() tea.Msg {
		if m.player.State() != player.DeviceReady {
			if err := m.player.Connect(m.ctx); err != nil {
				return playbackStartedMsg{err: err}
			}
		}
		return playbackStartedMsg{err: m.player.Play(m.ctx, m.cure.URI)}
	}
}

func (m *Model) togglePlayback() tea.Cmd {
	return func() tea.Msg {
		err := m.player.TogglePlayPause(m.ctx)
		return playbackToggledMsg{playing: m.player.IsPlaying(), err: err}
	}
}

func (m *Model) toggleMute() tea.Cmd {
	return func() tea.Msg {
		err := m.player.ToggleMute(m.ctx)
		return muteToggledMsg{muted: m.player.Muted(), err: err}
	}
}

func (m *Model) renderSearch() string {
	title := styles.title.Render("DeWorm")
	prompt := "Search for the song stuck in your head:"

	var errLine string
	if m.err != nil {
		errLine = "\n" + styles.err.Render(m.err.Error())
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s%s\n\n%s", title, prompt, m.input.View(), errLine, helpView)
}

func (m *Model) renderResults() string {
	var errLine string
	if m.err != nil {
		errLine = styles.err.Render(m.err.Error()) + "\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s%s\n\n%s", errLine, m.results.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Cure '%s'?", m.earworm.Name))
	info := "\nA replacement from the curated playlist will start playing.\nThe earworm itself is never played.\n"

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s%s\n%s", title, info, helpView)
}

func (m *Model) renderPlaying() string {
	title := styles.ok.Render("✓ Replacement playing")

	status := "paused"
	if m.playing {
		status = "playing"
	}
	if m.muted {
		status += ", muted"
	}

	var errLine string
	if m.err != nil {
		errLine = "\n" + styles.err.Render(m.err.Error())
	}

	info := fmt.Sprintf("\nEarworm: %s\nCure: %s (%s)%s\n", m.earworm.Name, m.cure.Name, status, errLine)
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.pause, m.keys.mute, m.keys.search, m.keys.quit})
	return fmt.Sprintf("%s%s\n%s", title, info, helpView)
}
