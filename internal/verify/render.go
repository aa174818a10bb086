package verify

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/identity"
	"github.com/flor3z/torn-bot/internal/torn"
)

// Embed colors
const (
	ColorGreen = 0x2ecc71
	ColorRed   = 0xe74c3c
	ColorBlue  = 0x3498db
)

// errorMessage renders a verification failure for guild members
func errorMessage(err error) string {
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		return fmt.Sprintf("Error while doing the verification: %s", torn.HideKey(err.Error()))
	}

	switch idErr.Kind {
	case identity.KindExternalAPI:
		return fmt.Sprintf("API error code %d: %s", idErr.Code, torn.HideKey(idErr.Message))
	case identity.KindNotLinked:
		return idErr.Message
	case identity.KindUnknownExternalID:
		return fmt.Sprintf("%s. Please check again.", idErr.Message)
	case identity.KindInconsistent:
		return fmt.Sprintf("That's odd... %s", idErr.Message)
	case identity.KindPermissionDenied:
		return fmt.Sprintf("I'm not allowed to do that: %s", idErr.Message)
	case identity.KindNoCredential:
		return "No master key given"
	default:
		return fmt.Sprintf("Error while doing the verification: %s", torn.HideKey(idErr.Error()))
	}
}

func color(ok bool) int {
	if ok {
		return ColorGreen
	}
	return ColorRed
}

// OutcomeEmbed renders the answer to a verification command
func OutcomeEmbed(author *discordgo.Member, out Outcome) *discordgo.MessageEmbed {
	title := "Verification failed"
	if out.OK {
		title = "Verification succeeded"
	}

	eb := &discordgo.MessageEmbed{
		Title:       title,
		Description: out.Message,
		Color:       color(out.OK),
	}
	if author != nil && author.User != nil {
		eb.Author = &discordgo.MessageEmbedAuthor{Name: discord.DisplayName(author), IconURL: author.AvatarURL("")}
	}
	return eb
}

// memberEmbed renders one line of a sweep report
func memberEmbed(m *discordgo.Member, description string, ok bool, i, total int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: description,
		Color:       color(ok),
		Author:      &discordgo.MessageEmbedAuthor{Name: discord.DisplayName(m), IconURL: m.AvatarURL("")},
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%03d/%03d", i+1, total)},
	}
}

func errorEmbed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: torn.HideKey(description),
		Color:       ColorRed,
	}
}

func titleEmbed(title string, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Color: ColorBlue, Fields: fields}
}

func field(name string, value any) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: fmt.Sprint(value), Inline: true}
}
