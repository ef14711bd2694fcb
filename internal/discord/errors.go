package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Discord JSON error codes the bot reacts to.
const (
	CodeUnknownMessage       = 10008
	CodeUnknownInteraction   = 10062
	CodeCannotDMUser         = 50007
	CodeThreadAlreadyCreated = 160004
)

// HasAPICode reports whether err is a REST error carrying code.
func HasAPICode(err error, code int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	return restErr.Message.Code == code
}

// IsUnknownMessage matches a deleted or never-existing message.
func IsUnknownMessage(err error) bool {
	if HasAPICode(err, CodeUnknownMessage) {
		return true
	}
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound &&
		(restErr.Message == nil || restErr.Message.Code == 0)
}

// IsUnknownInteraction matches an interaction whose token has expired.
// Nothing can be sent back to the actor after it.
func IsUnknownInteraction(err error) bool {
	return HasAPICode(err, CodeUnknownInteraction)
}
