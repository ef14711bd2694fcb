package application

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/guildkeep/guildkeep/internal/stats"
)

const (
	colorPanel    = 0x2f3136
	colorPending  = 0x2b2d31
	colorAccepted = 0x43b581
	colorRejected = 0xf04747

	nicknameFieldName = "👤 Игровой ник и статик"
	maxNickname       = 32
	maxFieldValue     = 1024
)

const (
	MsgPanelPosted      = "Форма для подачи заявки отправлена!"
	MsgSubmitted        = "Ваша заявка успешно отправлена! Пожалуйста, ожидайте ответа от администрации."
	MsgNoChannel        = "Канал для заявок не настроен! Обратитесь к администратору."
	MsgNoRole           = "Роль для принятых участников не установлена!"
	MsgDecided          = "Решение по заявке принято!"
	MsgDecisionFailed   = "Произошла ошибка при обработке решения!"
	MsgSettingsSaved    = "Канал для заявок и роль для принятых участников сохранены!"
	MsgAlreadyDecided   = "По этой заявке уже принято решение."
	MsgMissingApplicant = "Не удалось определить автора заявки."
	MsgApplicationGone  = "Сообщение с заявкой не найдено."
)

func panelEmbed(imageURL string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "Подача заявки",
		Description: "Здесь Вы можете подать заявку\nПосле заполнения анкеты с вами свяжутся рекруты, которые работают с вашей заявкой",
		Color:       colorPanel,
	}
	if imageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: imageURL}
	}
	return e
}

func cooldownEmbed(left time.Duration) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⏳ Подождите",
		Description: "Вы сможете подать новую заявку через `" + stats.FormatRemaining(left) + "`",
		Color:       colorRejected,
	}
}

// form is what an applicant typed into the modal.
type form struct {
	Nickname string
	Age      string
	About    string
	Activity string
}

func (f form) embed(applicantID string, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎮 ЗАЯВКА В ФАМУ",
		Description: "Новая заявка на рассмотрение",
		Color:       colorPending,
		Fields: []*discordgo.MessageEmbedField{
			{Name: nicknameFieldName, Value: codeBlock(f.Nickname)},
			{Name: "📝 О себе", Value: codeBlock(f.About)},
			{Name: "📅 Возраст", Value: codeBlock(f.Age), Inline: true},
			{Name: "⌚ Активность", Value: codeBlock(f.Activity), Inline: true},
			{Name: "🎮 Discord", Value: "<@" + applicantID + ">"},
		},
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func codeBlock(s string) string {
	s = strings.ReplaceAll(s, "```", "")
	if r := []rune(s); len(r) > maxFieldValue-6 {
		s = string(r[:maxFieldValue-6])
	}
	return "```" + s + "```"
}

// nicknameFrom reads the game nickname back out of a posted application.
func nicknameFrom(e *discordgo.MessageEmbed) string {
	if e == nil {
		return ""
	}
	for _, f := range e.Fields {
		if f != nil && strings.Contains(f.Name, "Игровой ник") {
			nick := strings.TrimSpace(strings.ReplaceAll(f.Value, "```", ""))
			if r := []rune(nick); len(r) > maxNickname {
				nick = string(r[:maxNickname])
			}
			return nick
		}
	}
	return ""
}

func decisionButtons(applicantID string) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{CustomID: AcceptPrefix + applicantID, Label: "Принять", Style: discordgo.SuccessButton},
		discordgo.Button{CustomID: RejectPrefix + applicantID, Label: "Отклонить", Style: discordgo.DangerButton},
	}}
}

// decided copies the application embed with the verdict appended.
func decided(orig *discordgo.MessageEmbed, accepted bool, moderator string) (*discordgo.MessageEmbed, discordgo.ActionsRow) {
	e := &discordgo.MessageEmbed{}
	if orig != nil {
		*e = *orig
		e.Fields = append([]*discordgo.MessageEmbedField(nil), orig.Fields...)
	}

	verdict, color := "Отклонено", colorRejected
	button := discordgo.Button{CustomID: "app:rejected", Label: "Отклонено", Style: discordgo.DangerButton, Disabled: true}
	if accepted {
		verdict, color = "Принято", colorAccepted
		button = discordgo.Button{CustomID: "app:accepted", Label: "Принято", Style: discordgo.SuccessButton, Disabled: true}
	}
	e.Color = color
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name:  "\u200b",
		Value: verdict + " модератором `" + moderator + "`",
	})
	return e, discordgo.ActionsRow{Components: []discordgo.MessageComponent{button}}
}

func verdictDM(accepted bool) *discordgo.MessageEmbed {
	if accepted {
		return &discordgo.MessageEmbed{
			Title:       "💠 ЗАЯВКА В ФАМУ",
			Description: "```diff\n+ Ваша заявка была одобрена!\n```",
			Color:       colorAccepted,
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "💠 ЗАЯВКА В ФАМУ",
		Description: "```diff\n- Ваша заявка была отклонена\n```\nПопробуйте подать заявку позже.",
		Color:       colorRejected,
	}
}

// isDecided reports whether the application message already carries a
// verdict. Messages decoded from the API hold pointer components, locally
// built ones hold values.
func isDecided(msg *discordgo.Message) bool {
	for _, c := range msg.Components {
		var children []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			children = row.Components
		case discordgo.ActionsRow:
			children = row.Components
		}
		for _, child := range children {
			switch b := child.(type) {
			case *discordgo.Button:
				if b.Disabled {
					return true
				}
			case discordgo.Button:
				if b.Disabled {
					return true
				}
			}
		}
	}
	return false
}
