package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// screenshot is an illustration shown on the App Home tab.
type screenshot struct {
	file string
	alt  string
}

func markdown(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func header(text string) *slack.HeaderBlock {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func images(appURL string, shots ...screenshot) []slack.Block {
	if appURL == "" {
		return nil
	}
	base := strings.TrimSuffix(appURL, "/")
	blocks := make([]slack.Block, 0, len(shots))
	for _, s := range shots {
		url := fmt.Sprintf("%s/img/%s?w=1024&ssl=1", base, s.file)
		blocks = append(blocks, slack.NewImageBlock(url, s.alt, "", nil))
	}
	return blocks
}

// HomeView builds the App Home help tab. Screenshots are included when
// appURL, the public address serving /img, is known.
func HomeView(command, appURL string) slack.HomeTabViewRequest {
	var blocks []slack.Block

	blocks = append(blocks,
		header("Setting emojis :floppy_disk:"),
		markdown(fmt.Sprintf("Type `%s <list of emojis>` in any chat to set a list of emojis for later usage.", command)),
	)
	blocks = append(blocks, images(appURL,
		screenshot{"reaction-write-emojis.png", "write emojis"},
		screenshot{"reaction-save.png", "saved emojis"},
	)...)

	blocks = append(blocks,
		markdown(fmt.Sprintf("You can view what you saved any moment by typing `%s` in any chat.", command)),
	)
	blocks = append(blocks, images(appURL,
		screenshot{"reaction-write-nothing.png", "view emojis"},
		screenshot{"reaction-view.png", "view emojis"},
	)...)

	blocks = append(blocks,
		slack.NewDividerBlock(),
		header("Adding Reactions :star-struck:"),
		markdown("Go to a message, click `More Actions`, then click on `Multireact` to react with the saved "+
			"emojis to the message.\n\nIf you can't see `Multireact`, click `More message shortcuts...` "+
			"to find it."),
	)
	blocks = append(blocks, images(appURL,
		screenshot{"reaction-none.png", "message with no reactions"},
		screenshot{"reaction-menu.png", "message menu"},
		screenshot{"reaction-add.png", "message with reactions"},
	)...)

	return slack.HomeTabViewRequest{
		Type:   slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: blocks},
	}
}

// NoReactionsModal builds the dialog shown when the shortcut is used before
// any reactions were saved.
func NoReactionsModal(command string) slack.ModalViewRequest {
	text := fmt.Sprintf("You do not have any reactions set :anguished:\n"+
		"Type `%s <list of emojis>` in the chat to set one.", command)
	return slack.ModalViewRequest{
		Type:   slack.VTModal,
		Title:  slack.NewTextBlockObject(slack.PlainTextType, "Multi Reaction Add", false, false),
		Close:  slack.NewTextBlockObject(slack.PlainTextType, "Close", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{markdown(text)}},
	}
}
