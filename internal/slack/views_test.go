package slack

import (
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

func imageURLs(blocks []slack.Block) []string {
	var urls []string
	for _, b := range blocks {
		if img, ok := b.(*slack.ImageBlock); ok {
			urls = append(urls, img.ImageURL)
		}
	}
	return urls
}

func TestHomeView_WithAppURL(t *testing.T) {
	view := HomeView("/multireact", "https://multireact.example.com/")

	if view.Type != slack.VTHomeTab {
		t.Errorf("Type = %q, want home", view.Type)
	}
	urls := imageURLs(view.Blocks.BlockSet)
	if len(urls) != 7 {
		t.Fatalf("got %d images, want 7", len(urls))
	}
	if urls[0] != "https://multireact.example.com/img/reaction-write-emojis.png?w=1024&ssl=1" {
		t.Errorf("first image = %q", urls[0])
	}
}

func TestHomeView_WithoutAppURL(t *testing.T) {
	view := HomeView("/multireact", "")
	if urls := imageURLs(view.Blocks.BlockSet); len(urls) != 0 {
		t.Errorf("got %d images, want none", len(urls))
	}

	found := false
	for _, b := range view.Blocks.BlockSet {
		if s, ok := b.(*slack.SectionBlock); ok && strings.Contains(s.Text.Text, "`/multireact <list of emojis>`") {
			found = true
		}
	}
	if !found {
		t.Error("expected the configured command in the help text")
	}
}

func TestNoReactionsModal(t *testing.T) {
	modal := NoReactionsModal("/multireact-dev")

	if modal.Title.Text != "Multi Reaction Add" || modal.Close.Text != "Close" {
		t.Errorf("title/close = %q/%q", modal.Title.Text, modal.Close.Text)
	}
	if len(modal.Blocks.BlockSet) != 1 {
		t.Fatalf("got %d blocks, want 1", len(modal.Blocks.BlockSet))
	}
	section := modal.Blocks.BlockSet[0].(*slack.SectionBlock)
	want := "You do not have any reactions set :anguished:\nType `/multireact-dev <list of emojis>` in the chat to set one."
	if section.Text.Text != want {
		t.Errorf("text = %q, want %q", section.Text.Text, want)
	}
}
