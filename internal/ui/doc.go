// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for curing earworms:
//  1. [SearchView] : Type the song stuck in your head
//  2. [ResultListView] : Pick the exact track from the search results
//  3. [ConfirmView] : Confirm the cure
//  4. [PlayingView] : The replacement plays on the active device
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Playback in the terminal goes through the REST player endpoints against the
// user's active device; the Web Playback SDK only exists in the browser.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
