// Package discordtest provides an in-memory stand-in for the Discord REST
// endpoints the bot calls. Messages, threads, member changes and
// interaction responses are recorded for assertions.
package discordtest

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// APIError builds the error discordgo returns for a failed REST call.
func APIError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{
			StatusCode: status,
			Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		},
		ResponseBody: []byte(fmt.Sprintf(`{"code":%d}`, code)),
		Message:      &discordgo.APIErrorMessage{Code: code},
	}
}

type Response struct {
	Interaction *discordgo.Interaction
	Response    *discordgo.InteractionResponse
}

type Followup struct {
	Interaction *discordgo.Interaction
	Params      *discordgo.WebhookParams
}

type Fake struct {
	mu     sync.Mutex
	nextID uint64

	messages map[string]*discordgo.Message
	order    map[string][]string           // channel id -> message ids
	threads  map[string]*discordgo.Channel // starter message id -> thread

	Responses []Response
	Followups []Followup
	Nicknames map[string]string   // guild/user -> nick
	Roles     map[string][]string // guild/user -> role ids
	Commands  []*discordgo.ApplicationCommand
	Edits     int
	Threads   int

	// Calls lists the REST calls in the order they were made:
	// "respond", "followup", "fetch", "edit", "send", "thread", "nickname",
	// "role" and "dm".
	Calls []string
	// notices holds the text of every response and follow-up in order.
	notices []string

	// Injected failures.
	FetchErr    error
	EditErr     error
	ThreadErr   error
	SendErr     map[string]error // by channel id
	NicknameErr error
	RoleErr     error
	DMErr       error
	RespondErr  error

	// OnFetch runs after a message was read, outside the fake's lock.
	OnFetch func(channelID, messageID string)
}

func New() *Fake {
	return &Fake{
		nextID:    1000,
		messages:  make(map[string]*discordgo.Message),
		order:     make(map[string][]string),
		threads:   make(map[string]*discordgo.Channel),
		Nicknames: make(map[string]string),
		Roles:     make(map[string][]string),
		SendErr:   make(map[string]error),
	}
}

func (f *Fake) newID() string {
	f.nextID++
	return strconv.FormatUint(f.nextID, 10)
}

// Put stores msg as if it had been posted, assigning an id when missing.
func (f *Fake) Put(msg *discordgo.Message) *discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == "" {
		msg.ID = f.newID()
	}
	f.messages[msg.ID] = cloneMessage(msg)
	f.order[msg.ChannelID] = append(f.order[msg.ChannelID], msg.ID)
	return cloneMessage(msg)
}

// Delete removes a message so later reads answer "unknown message".
func (f *Fake) Delete(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, messageID)
}

// Message returns a copy of the stored message.
func (f *Fake) Message(messageID string) (*discordgo.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil, false
	}
	return cloneMessage(m), true
}

// ChannelMessages returns copies of the messages posted to channelID in order.
func (f *Fake) ChannelMessages(channelID string) []*discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Message
	for _, id := range f.order[channelID] {
		if m, ok := f.messages[id]; ok {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

func (f *Fake) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	if f.FetchErr != nil {
		err := f.FetchErr
		f.mu.Unlock()
		return nil, err
	}
	m, ok := f.messages[messageID]
	if !ok || m.ChannelID != channelID {
		f.mu.Unlock()
		return nil, APIError(http.StatusNotFound, 10008)
	}
	out := cloneMessage(m)
	hook := f.OnFetch
	f.Calls = append(f.Calls, "fetch")
	f.mu.Unlock()

	if hook != nil {
		hook(channelID, messageID)
	}
	return out, nil
}

func (f *Fake) ChannelMessageEditComplex(e *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return nil, f.EditErr
	}
	m, ok := f.messages[e.ID]
	if !ok || m.ChannelID != e.Channel {
		return nil, APIError(http.StatusNotFound, 10008)
	}
	if e.Content != nil {
		m.Content = *e.Content
	}
	if e.Embeds != nil {
		m.Embeds = cloneEmbeds(*e.Embeds)
	}
	if e.Components != nil {
		m.Components = *e.Components
	}
	f.Edits++
	f.Calls = append(f.Calls, "edit")
	return cloneMessage(m), nil
}

func (f *Fake) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErr[channelID]; err != nil {
		return nil, err
	}
	f.Calls = append(f.Calls, "send")
	m := &discordgo.Message{
		ID:         f.newID(),
		ChannelID:  channelID,
		Content:    data.Content,
		Embeds:     cloneEmbeds(data.Embeds),
		Components: data.Components,
	}
	f.messages[m.ID] = m
	f.order[channelID] = append(f.order[channelID], m.ID)
	return cloneMessage(m), nil
}

// MessageThreadStartComplex mirrors Discord: the thread takes the id of
// the message it starts from, and a second start fails with 160004.
func (f *Fake) MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ThreadErr != nil {
		return nil, f.ThreadErr
	}
	m, ok := f.messages[messageID]
	if !ok || m.ChannelID != channelID {
		return nil, APIError(http.StatusNotFound, 10008)
	}
	if _, exists := f.threads[messageID]; exists {
		return nil, APIError(http.StatusBadRequest, 160004)
	}
	th := &discordgo.Channel{
		ID:       messageID,
		ParentID: channelID,
		Name:     data.Name,
		Type:     data.Type,
	}
	m.Thread = th
	f.threads[messageID] = th
	f.Threads++
	f.Calls = append(f.Calls, "thread")
	return th, nil
}

// ForgetThread drops the thread reference from the stored message while
// the thread itself stays, as a stale read would show it.
func (f *Fake) ForgetThread(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		m.Thread = nil
	}
}

func (f *Fake) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RespondErr != nil {
		return f.RespondErr
	}
	f.Responses = append(f.Responses, Response{Interaction: i, Response: resp})
	f.Calls = append(f.Calls, "respond")
	if resp.Data != nil && resp.Data.Content != "" {
		f.notices = append(f.notices, resp.Data.Content)
	}
	return nil
}

func (f *Fake) FollowupMessageCreate(i *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Followups = append(f.Followups, Followup{Interaction: i, Params: data})
	f.Calls = append(f.Calls, "followup")
	f.notices = append(f.notices, data.Content)
	return &discordgo.Message{ID: f.newID(), Content: data.Content}, nil
}

func (f *Fake) GuildMemberNickname(guildID, userID, nickname string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NicknameErr != nil {
		return f.NicknameErr
	}
	f.Calls = append(f.Calls, "nickname")
	f.Nicknames[guildID+"/"+userID] = nickname
	return nil
}

func (f *Fake) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return f.RoleErr
	}
	f.Calls = append(f.Calls, "role")
	key := guildID + "/" + userID
	f.Roles[key] = append(f.Roles[key], roleID)
	return nil
}

// UserChannelCreate opens a DM channel whose id is "dm-" + the user id.
func (f *Fake) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DMErr != nil {
		return nil, f.DMErr
	}
	f.Calls = append(f.Calls, "dm")
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *Fake) ApplicationCommandBulkOverwrite(_ string, _ string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = commands
	return commands, nil
}

// LastResponse returns the most recent interaction response.
func (f *Fake) LastResponse() (*discordgo.InteractionResponse, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Responses) == 0 {
		return nil, false
	}
	return f.Responses[len(f.Responses)-1].Response, true
}

// LastNotice returns the text of the most recent response or follow-up.
func (f *Fake) LastNotice() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notices) == 0 {
		return "", false
	}
	return f.notices[len(f.notices)-1], true
}

// CallLog returns a copy of Calls.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func cloneMessage(m *discordgo.Message) *discordgo.Message {
	out := *m
	out.Embeds = cloneEmbeds(m.Embeds)
	if m.Thread != nil {
		th := *m.Thread
		out.Thread = &th
	}
	return &out
}

func cloneEmbeds(in []*discordgo.MessageEmbed) []*discordgo.MessageEmbed {
	if in == nil {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, len(in))
	for i, e := range in {
		if e == nil {
			continue
		}
		c := *e
		c.Fields = make([]*discordgo.MessageEmbedField, len(e.Fields))
		for j, fld := range e.Fields {
			if fld != nil {
				v := *fld
				c.Fields[j] = &v
			}
		}
		out[i] = &c
	}
	return out
}
