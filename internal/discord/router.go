package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/config"
)

// GenericFailure is what the actor sees when a handler fails unexpectedly.
const GenericFailure = "Произошла ошибка!"

// HandlerFunc handles one interaction. Returned errors go through the
// router's failure policy; handlers answer expected outcomes themselves.
type HandlerFunc func(ctx context.Context, r *Responder, i *discordgo.Interaction) error

type prefixRoute struct {
	prefix  string
	handler HandlerFunc
}

type routeTable struct {
	exact    map[string]HandlerFunc
	prefixes []prefixRoute
}

func (t *routeTable) lookup(id string) (HandlerFunc, bool) {
	if h, ok := t.exact[id]; ok {
		return h, true
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.handler, true
		}
	}
	return nil, false
}

type Router struct {
	api     Interactor
	timeout time.Duration
	log     *zap.Logger

	commands   map[string]HandlerFunc
	components routeTable
	modals     routeTable

	inflight sync.WaitGroup
}

func NewRouter(api Interactor, timeout time.Duration, log *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = config.DefaultInteractionTimeout
	}
	return &Router{
		api:        api,
		timeout:    timeout,
		log:        log.Named("router"),
		commands:   make(map[string]HandlerFunc),
		components: routeTable{exact: make(map[string]HandlerFunc)},
		modals:     routeTable{exact: make(map[string]HandlerFunc)},
	}
}

func (r *Router) Command(name string, h HandlerFunc) { r.commands[name] = h }

func (r *Router) Component(customID string, h HandlerFunc) { r.components.exact[customID] = h }

func (r *Router) ComponentPrefix(prefix string, h HandlerFunc) {
	r.components.prefixes = append(r.components.prefixes, prefixRoute{prefix, h})
}

func (r *Router) Modal(customID string, h HandlerFunc) { r.modals.exact[customID] = h }

func (r *Router) ModalPrefix(prefix string, h HandlerFunc) {
	r.modals.prefixes = append(r.modals.prefixes, prefixRoute{prefix, h})
}

// Lookup finds the handler for i and the route key it matched on.
func (r *Router) Lookup(i *discordgo.Interaction) (HandlerFunc, string, bool) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		h, ok := r.commands[name]
		return h, "/" + name, ok
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		h, ok := r.components.lookup(id)
		return h, id, ok
	case discordgo.InteractionModalSubmit:
		id := i.ModalSubmitData().CustomID
		h, ok := r.modals.lookup(id)
		return h, id, ok
	}
	return nil, "", false
}

// Dispatch handles i on its own goroutine.
func (r *Router) Dispatch(i *discordgo.Interaction) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.Handle(context.Background(), i)
	}()
}

// Wait blocks until every dispatched interaction has finished.
func (r *Router) Wait() { r.inflight.Wait() }

// Handle runs the matching handler synchronously and applies the failure
// policy to its error.
func (r *Router) Handle(ctx context.Context, i *discordgo.Interaction) {
	h, route, ok := r.Lookup(i)
	log := r.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("route", route),
		zap.String("user_id", userID(i)),
	)
	if !ok {
		log.Warn("no handler for interaction", zap.Int("type", int(i.Type)))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp := NewResponder(r.api, i)
	start := time.Now()
	err := r.safeCall(ctx, h, resp, i)
	if err == nil {
		log.Debug("interaction handled", zap.Duration("took", time.Since(start)))
		return
	}
	r.fail(log, resp, err)
}

func (r *Router) safeCall(ctx context.Context, h HandlerFunc, resp *Responder, i *discordgo.Interaction) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, resp, i)
}

func (r *Router) fail(log *zap.Logger, resp *Responder, err error) {
	log.Error("interaction failed", zap.Error(err))
	if IsUnknownInteraction(err) {
		return
	}

	// The handler context may already be expired.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if nerr := resp.Notify(ctx, GenericFailure); nerr != nil {
		log.Warn("failure notice not delivered", zap.Error(nerr))
	}
}

func userID(i *discordgo.Interaction) string {
	if u := InteractionUser(i); u != nil {
		return u.ID
	}
	return ""
}
